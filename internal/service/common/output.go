package common

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// TableColumn はテーブルの列定義
type TableColumn struct {
	Header string
}

// PrintTable はテーブル形式でデータを表示する
// 列幅は表示幅で計算する（全角文字は2桁として扱う）
func PrintTable(title string, columns []TableColumn, data [][]string) {
	if title != "" {
		fmt.Printf("\n%s:\n", title)
	}

	// 各列の最大幅を計算（ヘッダーとデータの中で最大値を取得）
	colWidths := make([]int, len(columns))
	for i, col := range columns {
		colWidths[i] = runewidth.StringWidth(col.Header)
	}
	for _, row := range data {
		for i, cell := range row {
			if i < len(colWidths) && runewidth.StringWidth(cell) > colWidths[i] {
				colWidths[i] = runewidth.StringWidth(cell)
			}
		}
	}

	// ヘッダー表示
	for i, col := range columns {
		fmt.Printf("%s ", runewidth.FillRight(col.Header, colWidths[i]))
	}
	fmt.Println()

	// 区切り線
	for i := range columns {
		fmt.Printf("%s ", strings.Repeat("-", colWidths[i]))
	}
	fmt.Println()

	// データ行
	for _, row := range data {
		for i, cell := range row {
			if i < len(columns) {
				fmt.Printf("%s ", runewidth.FillRight(cell, colWidths[i]))
			}
		}
		fmt.Println()
	}
}

// FormatListError はリスト取得エラーを統一フォーマットで返す
func FormatListError(service string, err error) error {
	return fmt.Errorf("❌ %s一覧取得でエラー: %w", service, err)
}
