package cmd

import (
	"errors"
	"os"

	awsconfig "amisweep/internal/aws"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"
)

// AppName はCLIのコマンド名
const AppName = "amisweep"

var (
	region  string
	profile string
	verbose bool

	awsCtx awsconfig.Context
	awsCfg awssdk.Config
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   AppName,
	Short: "未使用AMIとスナップショットをクリーンアップするCLIツール",
	Long: `アカウント所有のAMIのうち、起動テンプレートやSSMパラメータストアから
参照されていない古いAMIを検出し、AMIの登録解除と関連スナップショットの削除を行います。

例:
  ` + AppName + ` ami ls -P my-profile
  ` + AppName + ` ami cleanup -P my-profile --days 30 --dry-run`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := RootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&region, "region", "R", "ap-northeast-1", "AWSリージョン")
	RootCmd.PersistentFlags().StringVarP(&profile, "profile", "P", "", "AWSプロファイル")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "スキップ理由などの詳細ログを表示")

	// コマンド実行前に共通でプロファイルチェックとAWS設定読み込みを行う
	RootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// ヘルプとバージョンはAWSアクセス不要のためスキップ
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		if err := checkAndSetProfile(cmd); err != nil {
			return err
		}

		awsCtx = awsconfig.Context{Profile: profile, Region: region}
		cfg, err := awsCtx.GetConfig()
		if err != nil {
			cmd.SilenceUsage = true
			return err
		}
		awsCfg = cfg
		return nil
	}
}

// checkAndSetProfile はプロファイルの確認と設定を行うプライベート関数
func checkAndSetProfile(cmd *cobra.Command) error {
	// プロファイルがすでに指定されている場合は何もしない
	if profile != "" {
		return nil
	}
	// 環境変数からプロファイル取得を試みる
	envProfile := os.Getenv("AWS_PROFILE")
	if envProfile == "" {
		// プロファイルが見つからない場合はエラー
		cmd.SilenceUsage = true // エラー時のUsage表示を抑制
		return errors.New("❌ エラー: プロファイルが指定されていません。-Pオプションまたは AWS_PROFILE 環境変数を指定してください")
	}
	// 環境変数からプロファイルを設定
	profile = envProfile
	cmd.Println("🔍 環境変数 AWS_PROFILE の値 '" + profile + "' を使用します")
	return nil
}
