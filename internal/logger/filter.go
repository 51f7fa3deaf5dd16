package logger

import (
	"fmt"
	"regexp"

	"go.uber.org/zap/zapcore"
)

// SuppressFunc 判断一条日志是否应被丢弃
type SuppressFunc func(entry zapcore.Entry, fields []zapcore.Field) bool

// DefaultSuppressedPatterns 宿主 SDK 的已知噪声，不影响附件下载的正确性
var DefaultSuppressedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)pubsub\.googleapis\.com`),
	regexp.MustCompile(`(?i)apparently already expired token`),
	regexp.MustCompile(`(?i)assuming our clock is busted`),
	regexp.MustCompile(`(?i)Failed to load.*googleapis\.com`),
	regexp.MustCompile(`(?i)mailfoogae`),
	regexp.MustCompile(`(?i)Failed to log events`),
	regexp.MustCompile(`^Error logged:$`),
}

// PatternSuppressor 返回按正则匹配的过滤函数
//
// 只过滤 minLevel 及以上级别，消息本身和所有字段值都会参与匹配
func PatternSuppressor(minLevel zapcore.Level, patterns ...*regexp.Regexp) SuppressFunc {
	return func(entry zapcore.Entry, fields []zapcore.Field) bool {
		if entry.Level < minLevel {
			return false
		}
		if matchAny(patterns, entry.Message) {
			return true
		}
		if len(fields) == 0 {
			return false
		}

		enc := zapcore.NewMapObjectEncoder()
		for _, f := range fields {
			f.AddTo(enc)
		}
		for _, value := range enc.Fields {
			if value == nil {
				continue
			}
			if matchAny(patterns, fmt.Sprint(value)) {
				return true
			}
		}
		return false
	}
}

// DefaultSuppressor 过滤 warn 及以上级别中的宿主 SDK 噪声
func DefaultSuppressor() SuppressFunc {
	return PatternSuppressor(zapcore.WarnLevel, DefaultSuppressedPatterns...)
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// filterCore 在写入前应用过滤函数的 zapcore.Core 包装
type filterCore struct {
	zapcore.Core
	suppress SuppressFunc
	fields   []zapcore.Field
}

// NewFilterCore 包装 core，丢弃 suppress 返回 true 的条目
func NewFilterCore(core zapcore.Core, suppress SuppressFunc) zapcore.Core {
	return &filterCore{Core: core, suppress: suppress}
}

func (c *filterCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &filterCore{
		Core:     c.Core.With(fields),
		suppress: c.suppress,
		fields:   merged,
	}
}

func (c *filterCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

func (c *filterCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := fields
	if len(c.fields) > 0 {
		all = make([]zapcore.Field, 0, len(c.fields)+len(fields))
		all = append(all, c.fields...)
		all = append(all, fields...)
	}
	if c.suppress(entry, all) {
		return nil
	}
	return c.Core.Write(entry, fields)
}
