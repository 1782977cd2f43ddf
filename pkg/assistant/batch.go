package assistant

import (
	"fmt"
	"strings"
)

// DefaultBatchSizeLimit 是单个合并批次文件的字节上限（10MB）。
const DefaultBatchSizeLimit int64 = 10 * 1024 * 1024

// FileContent 是待合并上传的单个文件内容。
type FileContent struct {
	FileID   string
	FileName string
	Content  string
}

// Batch 是一组文件按顺序拼接成的单个上传单元。
type Batch struct {
	Name      string
	Content   string
	Size      int64
	FileNames []string
	FileIDs   []string
}

// BuildBatches 按贪心策略把文件内容打包成若干批次：
// 依次追加文件块，块写入会使当前批次超过上限时先封批再开新批。
// 单个文件块本身超限时独占一个批次。内容为空的文件被跳过。
func BuildBatches(folderID string, files []FileContent, sizeLimit int64) []Batch {
	if sizeLimit <= 0 {
		sizeLimit = DefaultBatchSizeLimit
	}

	var batches []Batch
	var buf strings.Builder
	var names []string
	var ids []string

	seal := func() {
		if buf.Len() == 0 {
			return
		}
		batches = append(batches, Batch{
			Name:      fmt.Sprintf("folder_%s_batch_%d.txt", folderID, len(batches)+1),
			Content:   buf.String(),
			Size:      int64(buf.Len()),
			FileNames: names,
			FileIDs:   ids,
		})
		buf.Reset()
		names = nil
		ids = nil
	}

	for _, f := range files {
		if strings.TrimSpace(f.Content) == "" {
			continue
		}
		block := formatFileBlock(f.FileName, f.Content)
		if buf.Len() > 0 && int64(buf.Len())+int64(len(block)) > sizeLimit {
			seal()
		}
		buf.WriteString(block)
		names = append(names, f.FileName)
		ids = append(ids, f.FileID)
	}
	seal()

	return batches
}

// formatFileBlock 输出批次内单个文件的定界块，文件名作为可引用的来源标记。
func formatFileBlock(fileName, content string) string {
	return fmt.Sprintf("\n\n=== FILE: %s ===\n\n%s\n", fileName, content)
}
