package ami

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

func init() {
	// テストでは削除間の待機を行わない
	deleteInterval = 0
}

// fakeEc2 はテスト用のEC2 API実装。
// pageSizeを設定すると一覧系APIがNextTokenでページ分割して応答する
type fakeEc2 struct {
	mu       sync.Mutex
	pageSize int

	images                  []ec2types.Image
	describeImagesErr       error
	lastDescribeImagesInput *ec2.DescribeImagesInput

	launchTemplates       []ec2types.LaunchTemplate
	describeTemplatesErr  error
	describeTemplateCalls int
	templateImageIds      map[string]string // テンプレート名 → AMI ID
	templateVersionErr    map[string]error  // テンプレート名 → バージョン取得エラー

	deregisterErr     map[string]error
	deregistered      []string
	deleteSnapshotErr map[string]error
	deletedSnapshots  []string
}

func (f *fakeEc2) DescribeImages(_ context.Context, params *ec2.DescribeImagesInput, _ ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	f.lastDescribeImagesInput = params
	if f.describeImagesErr != nil {
		return nil, f.describeImagesErr
	}

	images := f.images
	if params.MaxResults != nil && int(*params.MaxResults) < len(images) {
		images = images[:*params.MaxResults]
	}
	return &ec2.DescribeImagesOutput{Images: images}, nil
}

func (f *fakeEc2) DescribeLaunchTemplates(_ context.Context, params *ec2.DescribeLaunchTemplatesInput, _ ...func(*ec2.Options)) (*ec2.DescribeLaunchTemplatesOutput, error) {
	f.describeTemplateCalls++
	if f.describeTemplatesErr != nil {
		return nil, f.describeTemplatesErr
	}

	templates := f.launchTemplates
	if len(params.LaunchTemplateNames) > 0 {
		requested := make(map[string]struct{}, len(params.LaunchTemplateNames))
		for _, name := range params.LaunchTemplateNames {
			requested[name] = struct{}{}
		}
		var filtered []ec2types.LaunchTemplate
		for _, template := range f.launchTemplates {
			if _, ok := requested[aws.ToString(template.LaunchTemplateName)]; ok {
				filtered = append(filtered, template)
			}
		}
		templates = filtered
	}

	start, end, next := pageBounds(len(templates), f.pageSize, params.NextToken)
	return &ec2.DescribeLaunchTemplatesOutput{LaunchTemplates: templates[start:end], NextToken: next}, nil
}

func (f *fakeEc2) DescribeLaunchTemplateVersions(_ context.Context, params *ec2.DescribeLaunchTemplateVersionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeLaunchTemplateVersionsOutput, error) {
	name := f.templateNameById(aws.ToString(params.LaunchTemplateId))
	if err, ok := f.templateVersionErr[name]; ok {
		return nil, err
	}

	imageId, ok := f.templateImageIds[name]
	if !ok {
		// バージョンはあるがAMI参照を持たないテンプレート
		return &ec2.DescribeLaunchTemplateVersionsOutput{
			LaunchTemplateVersions: []ec2types.LaunchTemplateVersion{
				{LaunchTemplateData: &ec2types.ResponseLaunchTemplateData{}},
			},
		}, nil
	}
	return &ec2.DescribeLaunchTemplateVersionsOutput{
		LaunchTemplateVersions: []ec2types.LaunchTemplateVersion{
			{LaunchTemplateData: &ec2types.ResponseLaunchTemplateData{ImageId: aws.String(imageId)}},
		},
	}, nil
}

func (f *fakeEc2) DeregisterImage(_ context.Context, params *ec2.DeregisterImageInput, _ ...func(*ec2.Options)) (*ec2.DeregisterImageOutput, error) {
	imageId := aws.ToString(params.ImageId)
	if err, ok := f.deregisterErr[imageId]; ok {
		return nil, err
	}
	f.deregistered = append(f.deregistered, imageId)
	return &ec2.DeregisterImageOutput{}, nil
}

func (f *fakeEc2) DeleteSnapshot(_ context.Context, params *ec2.DeleteSnapshotInput, _ ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error) {
	snapshotId := aws.ToString(params.SnapshotId)
	if err, ok := f.deleteSnapshotErr[snapshotId]; ok {
		return nil, err
	}
	// スナップショット削除は並列実行されるため排他する
	f.mu.Lock()
	f.deletedSnapshots = append(f.deletedSnapshots, snapshotId)
	f.mu.Unlock()
	return &ec2.DeleteSnapshotOutput{}, nil
}

func (f *fakeEc2) templateNameById(id string) string {
	for _, template := range f.launchTemplates {
		if aws.ToString(template.LaunchTemplateId) == id {
			return aws.ToString(template.LaunchTemplateName)
		}
	}
	return ""
}

// pageBounds は一覧系フェイクのページ範囲と次トークンを計算する。
// pageSizeが0の場合は全件を1ページで返す
func pageBounds(total, pageSize int, token *string) (start, end int, next *string) {
	if token != nil {
		start, _ = strconv.Atoi(*token)
	}
	end = total
	if pageSize > 0 && start+pageSize < total {
		end = start + pageSize
		next = aws.String(strconv.Itoa(end))
	}
	return start, end, next
}

// fakeSsm はテスト用のSSM API実装。
// pageSizeを設定するとDescribeParametersがNextTokenでページ分割して応答する
type fakeSsm struct {
	pageSize      int
	parameters    map[string]string // パラメータ名 → 値
	describeErr   error
	getErr        map[string]error
	describeCalls int
	getCalls      []string
}

func (f *fakeSsm) DescribeParameters(_ context.Context, params *ssm.DescribeParametersInput, _ ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error) {
	f.describeCalls++
	if f.describeErr != nil {
		return nil, f.describeErr
	}

	// Name Containsフィルタのみ再現する
	var contains string
	for _, filter := range params.ParameterFilters {
		if aws.ToString(filter.Key) == "Name" && aws.ToString(filter.Option) == "Contains" && len(filter.Values) > 0 {
			contains = filter.Values[0]
		}
	}

	var names []string
	for name := range f.parameters {
		if contains == "" || strings.Contains(name, contains) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	start, end, next := pageBounds(len(names), f.pageSize, params.NextToken)
	output := &ssm.DescribeParametersOutput{NextToken: next}
	for _, name := range names[start:end] {
		output.Parameters = append(output.Parameters, ssmtypes.ParameterMetadata{Name: aws.String(name)})
	}
	return output, nil
}

func (f *fakeSsm) GetParameter(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	name := aws.ToString(params.Name)
	f.getCalls = append(f.getCalls, name)
	if err, ok := f.getErr[name]; ok {
		return nil, err
	}
	value, ok := f.parameters[name]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{Name: aws.String(name), Value: aws.String(value)},
	}, nil
}

// testImage は指定日数前に作成されたAMIのSDK表現を作る
func testImage(id string, ageDays int, snapshotIds ...string) ec2types.Image {
	created := time.Now().UTC().Add(-time.Duration(ageDays) * 24 * time.Hour).Format(time.RFC3339)
	img := ec2types.Image{
		ImageId:      aws.String(id),
		Name:         aws.String("test-" + id),
		CreationDate: aws.String(created),
	}
	for _, snapshotId := range snapshotIds {
		img.BlockDeviceMappings = append(img.BlockDeviceMappings, ec2types.BlockDeviceMapping{
			Ebs: &ec2types.EbsBlockDevice{SnapshotId: aws.String(snapshotId)},
		})
	}
	return img
}

// testImageNoDate は作成日時を持たないAMIのSDK表現を作る
func testImageNoDate(id string, snapshotIds ...string) ec2types.Image {
	img := testImage(id, 0, snapshotIds...)
	img.CreationDate = nil
	return img
}

// testTemplate は起動テンプレートのSDK表現を作る
func testTemplate(id, name string) ec2types.LaunchTemplate {
	return ec2types.LaunchTemplate{
		LaunchTemplateId:   aws.String(id),
		LaunchTemplateName: aws.String(name),
	}
}
