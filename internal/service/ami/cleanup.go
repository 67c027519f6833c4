package ami

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
)

// RunCleanup は未使用AMIのクリーンアップを実行します。
// 参照集合の収集とAMI一覧の取得の失敗のみエラーとして返し、
// 個々のAMI/スナップショットの削除失敗はログに記録して処理を継続します
func RunCleanup(ctx context.Context, clients ClientSet, opts CleanupOptions) error {
	if err := validateClients(clients); err != nil {
		return err
	}
	opts = opts.withDefaults()

	fmt.Printf("🔍 未使用AMIを検索します（保持期間: %d日）\n", opts.MinimumDaysOld)
	if opts.DryRun {
		fmt.Println("📋 ドライランモード: 実際の削除は行いません")
	}

	candidates, err := ResolveUnusedImages(ctx, clients, opts)
	if err != nil {
		return err
	}

	if len(candidates) == 0 {
		fmt.Println("削除対象のAMIはありませんでした")
		return nil
	}
	fmt.Printf("🎯 未使用AMI %d件が見つかりました（古い順に処理します）\n", len(candidates))

	// 古い順に1件ずつ処理する。連続する削除の間には待機を挟む
	var deleted, skipped, failed int
	for i, img := range candidates {
		if i > 0 {
			if err := waitBeforeNextDeletion(ctx, opts.DryRun); err != nil {
				return err
			}
		}

		switch DeleteImage(ctx, clients.Ec2Client, img, opts) {
		case OutcomeDeleted, OutcomeDryRun:
			deleted++
		case OutcomeFailed:
			failed++
		default:
			skipped++
		}
	}

	// ドライランでは削除件数ではなく削除予定件数として報告する
	deletedLabel := "削除"
	if opts.DryRun {
		deletedLabel = "削除予定"
	}
	fmt.Printf("\n📊 クリーンアップ結果: %s %d / スキップ %d / 失敗 %d / 対象 %d\n",
		deletedLabel, deleted, skipped, failed, len(candidates))
	return nil
}

// waitBeforeNextDeletion はAPIレート抑制のため次の削除まで待機する。
// コンテキストのキャンセルで待機を打ち切り、エラーを返す
func waitBeforeNextDeletion(ctx context.Context, dryRun bool) error {
	if dryRun || deleteInterval <= 0 {
		return ctx.Err()
	}

	seconds := int(deleteInterval / time.Second)
	bar := progressbar.NewOptions(seconds,
		progressbar.OptionSetDescription("次の削除まで待機中..."),
		progressbar.OptionSetWidth(20),
		progressbar.OptionClearOnFinish(),
	)
	for i := 0; i < seconds; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("クリーンアップを中断しました: %w", ctx.Err())
		case <-time.After(time.Second):
			_ = bar.Add(1)
		}
	}
	return nil
}

// validateClients はクライアントの事前条件チェックを行います
func validateClients(clients ClientSet) error {
	if clients.Ec2Client == nil {
		return fmt.Errorf("ec2クライアントが指定されていません")
	}
	if clients.SsmClient == nil {
		return fmt.Errorf("ssmクライアントが指定されていません")
	}
	return nil
}
