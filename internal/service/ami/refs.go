package ami

import (
	"context"
	"errors"
	"fmt"

	"amisweep/internal/service/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"
)

// CollectInUseReferences は使用中とみなすAMI IDの集合を収集します。
// SSMパラメータストアと起動テンプレートのデフォルトバージョンの2系統を統合します。
// どちらかの一覧取得に失敗した場合はエラーを返します（個々の項目の解決失敗はスキップ）。
func CollectInUseReferences(ctx context.Context, clients ClientSet, opts CleanupOptions) (map[string]struct{}, error) {
	inUse := make(map[string]struct{})

	paramRefs, err := collectParameterReferences(ctx, clients.SsmClient, opts.SsmParameterNames)
	if err != nil {
		return nil, err
	}
	for id := range paramRefs {
		inUse[id] = struct{}{}
	}

	templateRefs, err := collectLaunchTemplateReferences(ctx, clients.Ec2Client, opts.LaunchTemplateNames)
	if err != nil {
		return nil, err
	}
	for id := range templateRefs {
		inUse[id] = struct{}{}
	}

	return inUse, nil
}

// collectParameterReferences はSSMパラメータストアに記録されたAMI参照を収集する。
// パターン未指定の場合はAPI呼び出しを行わず空集合を返す
func collectParameterReferences(ctx context.Context, ssmClient SsmApi, patterns []string) (map[string]struct{}, error) {
	refs := make(map[string]struct{})
	if len(patterns) == 0 {
		return refs, nil
	}

	// 名前に目印文字列を含むパラメータを列挙し、指定パターンで絞り込む
	input := &ssm.DescribeParametersInput{
		ParameterFilters: []ssmtypes.ParameterStringFilter{
			{
				Key:    aws.String("Name"),
				Option: aws.String("Contains"),
				Values: []string{ssmParameterMarker},
			},
		},
	}

	var names []string
	for {
		output, err := ssmClient.DescribeParameters(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("SSMパラメータ一覧の取得に失敗: %w", err)
		}

		for _, param := range output.Parameters {
			name := aws.ToString(param.Name)
			if matchesAnyPattern(name, patterns) {
				names = append(names, name)
			}
		}

		if output.NextToken == nil {
			break
		}
		input.NextToken = output.NextToken
	}

	// 各パラメータの現在値をAMI参照として解決する
	for _, name := range names {
		output, err := ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
			Name: aws.String(name),
		})
		if err != nil {
			if isApiErrorCode(err, "ParameterNotFound") {
				fmt.Printf("⚠️  パラメータ %s は存在しません（スキップ）\n", name)
			} else {
				fmt.Printf("⚠️  パラメータ %s の値を取得できませんでした（スキップ）: %v\n", name, apiErrorSummary(err))
			}
			continue
		}
		if output.Parameter == nil || output.Parameter.Value == nil || *output.Parameter.Value == "" {
			continue
		}
		refs[*output.Parameter.Value] = struct{}{}
	}

	return refs, nil
}

// collectLaunchTemplateReferences は起動テンプレートのデフォルトバージョンが
// 参照するAMI IDを収集する。名前未指定の場合はすべてのテンプレートを対象とする
func collectLaunchTemplateReferences(ctx context.Context, ec2Client Ec2Api, names []string) (map[string]struct{}, error) {
	refs := make(map[string]struct{})

	input := &ec2.DescribeLaunchTemplatesInput{}
	if len(names) > 0 {
		input.LaunchTemplateNames = names
	}

	for {
		output, err := ec2Client.DescribeLaunchTemplates(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("起動テンプレート一覧の取得に失敗: %w", err)
		}

		for _, template := range output.LaunchTemplates {
			// テンプレート単体の失敗は収集全体を中断しない
			imageId, err := defaultVersionImageId(ctx, ec2Client, template)
			if err != nil {
				fmt.Printf("⚠️  起動テンプレート %s のデフォルトバージョンを取得できませんでした（スキップ）: %v\n",
					aws.ToString(template.LaunchTemplateName), apiErrorSummary(err))
				continue
			}
			if imageId != "" {
				refs[imageId] = struct{}{}
			}
		}

		if output.NextToken == nil {
			break
		}
		input.NextToken = output.NextToken
	}

	return refs, nil
}

// defaultVersionImageId はテンプレートのデフォルトバージョンが参照するAMI IDを返す。
// バージョンやAMI参照が存在しない場合は空文字を返す（エラーではない）
func defaultVersionImageId(ctx context.Context, ec2Client Ec2Api, template ec2types.LaunchTemplate) (string, error) {
	output, err := ec2Client.DescribeLaunchTemplateVersions(ctx, &ec2.DescribeLaunchTemplateVersionsInput{
		LaunchTemplateId: template.LaunchTemplateId,
		Versions:         []string{"$Default"},
	})
	if err != nil {
		return "", err
	}
	if len(output.LaunchTemplateVersions) == 0 {
		return "", nil
	}

	data := output.LaunchTemplateVersions[0].LaunchTemplateData
	if data == nil || data.ImageId == nil {
		return "", nil
	}
	return *data.ImageId, nil
}

// matchesAnyPattern はいずれかのパターンに一致するか判定する
func matchesAnyPattern(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if common.MatchPattern(name, pattern) {
			return true
		}
	}
	return false
}

// apiErrorSummary はAWS APIエラーをエラーコード中心の短い表現にする
func apiErrorSummary(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return err.Error()
}

// isApiErrorCode はAWS APIエラーが指定コードか判定する
func isApiErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == code
}
