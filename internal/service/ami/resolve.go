package ami

import (
	"context"
)

// ResolveUnusedImages はどこからも参照されていないAMIを古い順で返します。
// 参照集合の収集とAMI一覧の取得のどちらかが失敗した場合はエラーを返します
func ResolveUnusedImages(ctx context.Context, clients ClientSet, opts CleanupOptions) ([]Image, error) {
	inUse, err := CollectInUseReferences(ctx, clients, opts)
	if err != nil {
		return nil, err
	}

	images, err := ListOwnedImages(ctx, clients.Ec2Client, opts.Filters, opts.MaxItems)
	if err != nil {
		return nil, err
	}

	var unused []Image
	for _, img := range images {
		if _, ok := inUse[img.ImageId]; ok {
			continue
		}
		unused = append(unused, img)
	}

	return unused, nil
}
