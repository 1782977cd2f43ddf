// Package chunker 实现文档文本的确定性分块算法。
// 分块在 rune 维度上进行，startIndex / endIndex 均为 rune 偏移。
package chunker

import "strings"

// TextChunk 是从一篇文档文本中切出的一个分块。
// ChunkIndex 在同一文档内从 0 开始严格递增。
type TextChunk struct {
	Content    string `json:"content"`
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
	ChunkIndex int    `json:"chunkIndex"`
}

// Options 控制分块行为。
type Options struct {
	// ChunkSize 是目标分块长度（rune 数）。
	ChunkSize int
	// ChunkOverlap 是相邻分块允许的重叠长度（rune 数）。
	ChunkOverlap int
	// Separators 是寻找切点时按优先级尝试的分隔符列表。
	Separators []string
}

// breakWindow 是从候选切点向前回溯寻找分隔符的最大距离（rune 数）。
const breakWindow = 200

// DefaultOptions 返回默认的分块参数。
func DefaultOptions() Options {
	return Options{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Separators:   []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ": ", ", ", " "},
	}
}

// Chunk 将文本切分为带重叠的分块序列。
// 空文本或纯空白文本返回空序列。无论参数如何（包括 overlap >= size），
// 游标每轮至少前进 1，算法必然终止。
func Chunk(text string, opts Options) []TextChunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if opts.ChunkSize <= 0 {
		opts = DefaultOptions()
	}
	if len(opts.Separators) == 0 {
		opts.Separators = DefaultOptions().Separators
	}

	runes := []rune(text)
	var chunks []TextChunk
	start := 0
	chunkIndex := 0

	for start < len(runes) {
		end := start + opts.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		// 未到文本末尾时，在窗口尾部回溯寻找更自然的切点
		actualEnd := end
		if end < len(runes) {
			actualEnd = findBestBreakPoint(runes, start, end, opts.Separators)
		}

		content := strings.TrimSpace(string(runes[start:actualEnd]))
		if content != "" {
			chunks = append(chunks, TextChunk{
				Content:    content,
				StartIndex: start,
				EndIndex:   actualEnd,
				ChunkIndex: chunkIndex,
			})
			chunkIndex++
		}

		// 末尾分块产出后即收尾，重叠回退不会在文本尾部生成碎片后缀块
		if actualEnd >= len(runes) {
			break
		}

		// 带重叠前移；+1 下限保证 overlap >= size 时也能前进
		next := actualEnd - opts.ChunkOverlap
		if next < start+1 {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// findBestBreakPoint 从候选切点 end 向前最多 breakWindow 个 rune 内，
// 按优先级查找第一个出现的分隔符，并返回分隔符之后的位置。
// 找不到任何分隔符时按 end 硬切，可能切断单词，换取分块长度上界。
func findBestBreakPoint(runes []rune, start, end int, separators []string) int {
	searchStart := end - breakWindow
	if searchStart < start {
		searchStart = start
	}

	for _, sep := range separators {
		sepRunes := []rune(sep)
		if idx := lastIndexRunes(runes, searchStart, end, sepRunes); idx >= 0 {
			return idx + len(sepRunes)
		}
	}
	return end
}

// lastIndexRunes 在 runes[from:to) 中查找 sep 最后一次出现的起始位置，不存在时返回 -1。
func lastIndexRunes(runes []rune, from, to int, sep []rune) int {
	for i := to - len(sep); i >= from; i-- {
		match := true
		for j := range sep {
			if runes[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// EstimateTokenCount 粗略估算文本的 token 数（约 4 字符/token）。
func EstimateTokenCount(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}

// ChunkByTokens 以目标 token 数为单位切分文本，内部换算为字符参数后复用 Chunk。
func ChunkByTokens(text string, targetTokens, overlapTokens int) []TextChunk {
	opts := DefaultOptions()
	opts.ChunkSize = targetTokens * 4
	opts.ChunkOverlap = overlapTokens * 4
	return Chunk(text, opts)
}
