package ami

import (
	"context"
	"fmt"
	"sync"
	"time"

	"amisweep/internal/service/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// DeleteOutcome は1つのAMIに対する削除処理の結果
type DeleteOutcome int

const (
	OutcomeDeleted DeleteOutcome = iota
	OutcomeDryRun
	OutcomeSkippedNoDate
	OutcomeSkippedTooYoung
	OutcomeFailed
)

// DeleteImage は保持期間を超えたAMIの登録解除と関連スナップショットの削除を行います。
// 1つのAMIの失敗がバッチ全体を止めないよう、エラーは呼び出し元に返しません
func DeleteImage(ctx context.Context, ec2Client Ec2Api, img Image, opts CleanupOptions) DeleteOutcome {
	// 作成日時が不明なAMIは削除しない
	if img.CreationDate == nil {
		fmt.Printf("⚠️  %s は作成日時が不明のためスキップします\n", img.ImageId)
		return OutcomeSkippedNoDate
	}

	age := time.Since(*img.CreationDate)
	if age <= time.Duration(opts.MinimumDaysOld)*24*time.Hour {
		if opts.Verbose {
			fmt.Printf("  %s は保持期間内のためスキップします（%d日経過）\n", img.ImageId, int(age.Hours()/24))
		}
		return OutcomeSkippedTooYoung
	}

	if opts.DryRun {
		fmt.Printf("🗑️  [ドライラン] %s を登録解除し、スナップショット%d件を削除します\n",
			img.ImageId, len(img.SnapshotIds))
		return OutcomeDryRun
	}

	_, err := ec2Client.DeregisterImage(ctx, &ec2.DeregisterImageInput{
		ImageId: aws.String(img.ImageId),
	})
	if err != nil {
		// 登録解除に失敗したAMIのスナップショットには触らない
		fmt.Printf("❌ %s の登録解除に失敗しました: %v\n", img.ImageId, apiErrorSummary(err))
		return OutcomeFailed
	}
	fmt.Printf("✅ %s を登録解除しました\n", img.ImageId)

	deleteSnapshots(ctx, ec2Client, img)
	return OutcomeDeleted
}

// deleteSnapshots はAMIに関連するスナップショットを並列で削除し、すべての完了を待つ。
// 個々の失敗は他のスナップショットの削除に影響しない
func deleteSnapshots(ctx context.Context, ec2Client Ec2Api, img Image) {
	if len(img.SnapshotIds) == 0 {
		return
	}

	maxWorkers := maxSnapshotWorkers
	if len(img.SnapshotIds) < maxWorkers {
		maxWorkers = len(img.SnapshotIds)
	}

	executor := common.NewParallelExecutor(maxWorkers)
	results := make([]common.ProcessResult, len(img.SnapshotIds))
	resultsMutex := &sync.Mutex{}

	for i, snapshotId := range img.SnapshotIds {
		idx := i
		snapshot := snapshotId
		executor.Execute(func() {
			_, err := ec2Client.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{
				SnapshotId: aws.String(snapshot),
			})

			resultsMutex.Lock()
			if err != nil {
				fmt.Printf("  ❌ スナップショット %s の削除に失敗しました: %v\n", snapshot, apiErrorSummary(err))
				results[idx] = common.ProcessResult{Item: snapshot, Success: false, Error: err}
			} else {
				fmt.Printf("  ✅ スナップショット %s を削除しました\n", snapshot)
				results[idx] = common.ProcessResult{Item: snapshot, Success: true}
			}
			resultsMutex.Unlock()
		})
	}
	executor.Wait()

	successCount, failCount := common.CollectResults(results)
	if failCount > 0 {
		fmt.Printf("  ⚠️  スナップショット削除: 成功 %d件, 失敗 %d件\n", successCount, failCount)
	}
}
