package ami

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Ec2Api は本パッケージが利用するEC2 APIのサブセット
type Ec2Api interface {
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
	DescribeLaunchTemplates(ctx context.Context, params *ec2.DescribeLaunchTemplatesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeLaunchTemplatesOutput, error)
	DescribeLaunchTemplateVersions(ctx context.Context, params *ec2.DescribeLaunchTemplateVersionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeLaunchTemplateVersionsOutput, error)
	DeregisterImage(ctx context.Context, params *ec2.DeregisterImageInput, optFns ...func(*ec2.Options)) (*ec2.DeregisterImageOutput, error)
	DeleteSnapshot(ctx context.Context, params *ec2.DeleteSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error)
}

// SsmApi は本パッケージが利用するSSM APIのサブセット
type SsmApi interface {
	DescribeParameters(ctx context.Context, params *ssm.DescribeParametersInput, optFns ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error)
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ClientSet はAMI操作に必要なクライアントをまとめた構造体
type ClientSet struct {
	Ec2Client Ec2Api
	SsmClient SsmApi
}

// Image はアカウント所有AMIの情報を格納する構造体
type Image struct {
	ImageId      string
	Name         string
	CreationDate *time.Time // 作成日時が取得できないAMIはnil
	SnapshotIds  []string   // ブロックデバイスマッピングに含まれるEBSスナップショット
}

// Filter はAMI一覧取得の name=values 形式の検索条件
type Filter struct {
	Name   string
	Values []string
}

// CleanupOptions はAMIクリーンアップのパラメータを格納する構造体
type CleanupOptions struct {
	MinimumDaysOld      int      // この日数より古いAMIのみ削除（0でデフォルトの30日）
	MaxItems            int32    // AMI一覧取得のMaxResults。未使用判定前の一覧に適用される点に注意（0で無制限）
	Filters             []Filter // AMI一覧の検索条件（空でデフォルト: state=available, image-type=machine）
	LaunchTemplateNames []string // 参照を確認する起動テンプレート名（空ですべて）
	SsmParameterNames   []string // 参照を確認するSSMパラメータ名/パターン（空でSSMソースをスキップ）
	DryRun              bool     // trueの場合、登録解除とスナップショット削除を実行しない
	Verbose             bool     // 保持期間内スキップなどの詳細ログを表示
}

const (
	defaultMinimumDaysOld = 30

	// ssmParameterMarker はAMI参照を記録するパラメータ名に含まれる固定の目印
	ssmParameterMarker = "ami"

	// maxSnapshotWorkers は1つのAMIに対するスナップショット削除の最大並列数
	maxSnapshotWorkers = 5
)

// deleteInterval は連続するAMI削除の間に挟む待機時間（APIレート抑制）
var deleteInterval = 3 * time.Second

// withDefaults は未指定のフィールドにデフォルト値を補ったコピーを返す
func (o CleanupOptions) withDefaults() CleanupOptions {
	if o.MinimumDaysOld == 0 {
		o.MinimumDaysOld = defaultMinimumDaysOld
	}
	if len(o.Filters) == 0 {
		o.Filters = defaultImageFilters()
	}
	return o
}

// defaultImageFilters は利用可能なマシンイメージのみを対象とするデフォルト条件
func defaultImageFilters() []Filter {
	return []Filter{
		{Name: "state", Values: []string{"available"}},
		{Name: "image-type", Values: []string{"machine"}},
	}
}
