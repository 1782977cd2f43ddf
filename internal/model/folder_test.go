package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

// files 表必须有覆盖 (folder_id, drive_id) 的唯一键，
// 否则按该键的 upsert 永远走不到更新分支，重复同步会插入重复行。
func TestFileSyncKeyIsUnique(t *testing.T) {
	s, err := schema.Parse(&File{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	var found bool
	for _, idx := range s.ParseIndexes() {
		if idx.Class != "UNIQUE" {
			continue
		}
		var columns []string
		for _, opt := range idx.Fields {
			columns = append(columns, opt.DBName)
		}
		if assert.ObjectsAreEqual([]string{"folder_id", "drive_id"}, columns) {
			found = true
		}
	}
	assert.True(t, found, "files 缺少 (folder_id, drive_id) 唯一键")
}

func TestFinalIndexStatus(t *testing.T) {
	assert.Equal(t, IndexStatusCompleted, FinalIndexStatus(3, 0))
	assert.Equal(t, IndexStatusPartial, FinalIndexStatus(2, 1))
	assert.Equal(t, IndexStatusFailed, FinalIndexStatus(0, 2))
	// 空文件夹：无成功也无失败
	assert.Equal(t, IndexStatusFailed, FinalIndexStatus(0, 0))
}
