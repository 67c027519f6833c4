package ami

import (
	"context"
	"fmt"
	"sort"
	"time"

	"amisweep/internal/service/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// ListOwnedImages はアカウント所有のAMI一覧を作成日時の昇順で取得します。
// maxItemsはこの1回の一覧取得呼び出しに適用される（追加のページネーションは行わない）
func ListOwnedImages(ctx context.Context, ec2Client Ec2Api, filters []Filter, maxItems int32) ([]Image, error) {
	input := &ec2.DescribeImagesInput{
		Owners:  []string{"self"},
		Filters: toEc2Filters(filters),
	}
	if maxItems > 0 {
		input.MaxResults = aws.Int32(maxItems)
	}

	output, err := ec2Client.DescribeImages(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("AMI一覧の取得に失敗: %w", err)
	}

	images := make([]Image, 0, len(output.Images))
	for _, img := range output.Images {
		images = append(images, newImage(img))
	}

	sortByCreationDate(images)
	return images, nil
}

// newImage はSDKのイメージ情報を内部表現に変換する
func newImage(img ec2types.Image) Image {
	image := Image{
		ImageId: aws.ToString(img.ImageId),
		Name:    aws.ToString(img.Name),
	}

	// 作成日時はRFC3339文字列。解析できない場合は「不明」として扱う
	if img.CreationDate != nil {
		if t, err := time.Parse(time.RFC3339, *img.CreationDate); err == nil {
			image.CreationDate = &t
		}
	}

	for _, mapping := range img.BlockDeviceMappings {
		if mapping.Ebs != nil && mapping.Ebs.SnapshotId != nil {
			image.SnapshotIds = append(image.SnapshotIds, *mapping.Ebs.SnapshotId)
		}
	}

	return image
}

// sortByCreationDate は作成日時の昇順でソートする。
// 作成日時が不明なAMIは比較不能として位置を動かさない
func sortByCreationDate(images []Image) {
	sort.SliceStable(images, func(i, j int) bool {
		if images[i].CreationDate == nil || images[j].CreationDate == nil {
			return false
		}
		return images[i].CreationDate.Before(*images[j].CreationDate)
	})
}

// toEc2Filters は内部の検索条件をSDKのフィルタ形式に変換する
func toEc2Filters(filters []Filter) []ec2types.Filter {
	result := make([]ec2types.Filter, 0, len(filters))
	for _, f := range filters {
		result = append(result, ec2types.Filter{
			Name:   aws.String(f.Name),
			Values: f.Values,
		})
	}
	return result
}

// ListUnusedImages は削除候補となる未使用AMIの一覧を表形式で表示します
func ListUnusedImages(ctx context.Context, clients ClientSet, opts CleanupOptions) error {
	if err := validateClients(clients); err != nil {
		return err
	}
	opts = opts.withDefaults()

	candidates, err := ResolveUnusedImages(ctx, clients, opts)
	if err != nil {
		return common.FormatListError("未使用AMI", err)
	}

	if len(candidates) == 0 {
		fmt.Println("未使用のAMIが見つかりませんでした")
		return nil
	}

	columns := []common.TableColumn{
		{Header: "AMI ID"},
		{Header: "名前"},
		{Header: "作成日時"},
		{Header: "経過日数"},
		{Header: "スナップショット数"},
	}

	data := make([][]string, len(candidates))
	for i, img := range candidates {
		created := "不明"
		ageDays := "-"
		if img.CreationDate != nil {
			created = img.CreationDate.Format("2006-01-02 15:04:05")
			ageDays = fmt.Sprintf("%d", int(time.Since(*img.CreationDate).Hours()/24))
		}
		data[i] = []string{
			img.ImageId,
			img.Name,
			created,
			ageDays,
			fmt.Sprintf("%d", len(img.SnapshotIds)),
		}
	}

	common.PrintTable("未使用AMI一覧（古い順）", columns, data)
	fmt.Printf("\n合計: %d件\n", len(candidates))
	return nil
}
