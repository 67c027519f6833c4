package cmd

import (
	"context"
	"fmt"
	"time"

	amisvc "amisweep/internal/service/ami"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"
)

var (
	amiMinDays        int
	amiMaxItems       int32
	amiDryRun         bool
	amiTimeoutSeconds int
	amiTemplateNames  []string
	amiParamPatterns  []string
	amiClients        amisvc.ClientSet
)

// amiCmd represents the ami command
var amiCmd = &cobra.Command{
	Use:   "ami",
	Short: "未使用AMI関連の操作コマンド群",
	Long: `アカウント所有のAMIのうち、起動テンプレートのデフォルトバージョンと
SSMパラメータストアのどちらからも参照されていないAMIを対象にした操作を行います。`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 親のPersistentPreRunEを実行（プロファイルチェックとAWS設定読み込み）
		if err := RootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}

		// クライアント生成
		amiClients = amisvc.ClientSet{
			Ec2Client: ec2.NewFromConfig(awsCfg),
			SsmClient: ssm.NewFromConfig(awsCfg),
		}
		return nil
	},
}

var amiCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "未使用AMIを登録解除し、関連スナップショットを削除するコマンド",
	Long: `未使用のAMIを検出し、保持期間（--days）を超えたものから順に登録解除と
関連スナップショットの削除を行います。
!!! 注意 !!! このコマンドはAMIとスナップショットを完全に削除します。
まず --dry-run で削除対象を確認することを推奨します。

--max-items はAMI一覧取得のAPI呼び出しに適用されます。未使用判定の前に
一覧が絞り込まれるため、「未使用AMIを最大N件削除」とは一致しない点に注意してください。

例:
  ` + AppName + ` ami cleanup -P my-profile
  ` + AppName + ` ami cleanup -P my-profile --days 60 --dry-run
  ` + AppName + ` ami cleanup -P my-profile -t web-server -t batch -p /myapp/ami/*`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := amiCleanupOptions()
		opts.DryRun = amiDryRun

		ctx := context.Background()
		if amiTimeoutSeconds > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(amiTimeoutSeconds)*time.Second)
			defer cancel()
		}

		if err := amisvc.RunCleanup(ctx, amiClients, opts); err != nil {
			return fmt.Errorf("❌ AMIクリーンアップ中にエラーが発生しました: %w", err)
		}

		if amiDryRun {
			fmt.Println("✅ ドライラン完了")
		} else {
			fmt.Println("✅ AMIクリーンアップ完了！")
		}
		return nil
	},
	SilenceUsage: true,
}

var amiLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "未使用AMIの一覧を表示するコマンド",
	Long: `削除候補となる未使用AMIの一覧を古い順に表示します。表示のみで削除は行いません。

例:
  ` + AppName + ` ami ls -P my-profile
  ` + AppName + ` ami ls -P my-profile -t web-server`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return amisvc.ListUnusedImages(context.Background(), amiClients, amiCleanupOptions())
	},
	SilenceUsage: true,
}

// amiCleanupOptions はフラグ値からオプション構造体を組み立てる
func amiCleanupOptions() amisvc.CleanupOptions {
	return amisvc.CleanupOptions{
		MinimumDaysOld:      amiMinDays,
		MaxItems:            amiMaxItems,
		LaunchTemplateNames: amiTemplateNames,
		SsmParameterNames:   amiParamPatterns,
		Verbose:             verbose,
	}
}

func init() {
	RootCmd.AddCommand(amiCmd)
	amiCmd.AddCommand(amiCleanupCmd)
	amiCmd.AddCommand(amiLsCmd)

	// ami 共通のフラグ
	amiCmd.PersistentFlags().IntVarP(&amiMinDays, "days", "d", 0, "この日数より古いAMIのみ削除対象にする（デフォルト: 30）")
	amiCmd.PersistentFlags().Int32VarP(&amiMaxItems, "max-items", "m", 0, "AMI一覧取得の最大件数（デフォルト: 無制限）")
	amiCmd.PersistentFlags().StringSliceVarP(&amiTemplateNames, "launch-template", "t", nil, "参照を確認する起動テンプレート名（デフォルト: すべて）")
	amiCmd.PersistentFlags().StringSliceVarP(&amiParamPatterns, "ssm-parameter", "p", nil, "参照を確認するSSMパラメータ名/パターン（未指定の場合はSSMを確認しない）")

	// cleanup 固有のフラグ
	amiCleanupCmd.Flags().BoolVar(&amiDryRun, "dry-run", false, "実際には削除せず、削除対象を確認")
	amiCleanupCmd.Flags().IntVar(&amiTimeoutSeconds, "timeout", 0, "実行全体のタイムアウト（秒、0で無制限）")
}
