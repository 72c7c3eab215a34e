package usecase

import (
	"regexp"
	"strings"
	"time"
)

const identifierTimeFormat = "20060102150405"

var nonIdentChars = regexp.MustCompile(`[^a-z0-9]+`)

// sanitizeName はマイグレーション名を識別子に使える形（小文字英数字と"_"）に変換する。
func sanitizeName(name string) string {
	s := nonIdentChars.ReplaceAllString(strings.ToLower(name), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "migration"
	}
	return s
}

// NextIdentifier は時刻順の識別子を生成する。
// 秒精度のタイムスタンプがlastの時刻以下になる場合はlastの1秒後に進め、
// 同じ秒に複数生成しても識別子が一意かつ辞書順=生成順になるようにする。
func NextIdentifier(now time.Time, name, last string) string {
	ts := now.UTC().Truncate(time.Second)
	if len(last) >= len(identifierTimeFormat) {
		if lastTS, err := time.Parse(identifierTimeFormat, last[:len(identifierTimeFormat)]); err == nil && !ts.After(lastTS) {
			ts = lastTS.Add(time.Second)
		}
	}
	return ts.Format(identifierTimeFormat) + "_" + sanitizeName(name)
}
