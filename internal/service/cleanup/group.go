package cleanup

import (
	"path"
	"sort"

	"assetpipe/internal/server/storage"
)

type DirectoryGroup struct {
	Directory string                     `json:"directory"`
	Count     int                        `json:"count"`
	Uploads   []storage.IncompleteUpload `json:"uploads"`
}

// GroupByDirectory 按 key 去掉文件名后的目录分组，目录按字典序排列
// 每次都基于最新列表重新计算，不做缓存
func GroupByDirectory(uploads []storage.IncompleteUpload) []DirectoryGroup {
	idx := map[string]int{}
	var groups []DirectoryGroup
	for _, u := range uploads {
		dir := path.Dir(u.ObjectKey)
		if dir == "." {
			dir = ""
		}
		i, ok := idx[dir]
		if !ok {
			i = len(groups)
			idx[dir] = i
			groups = append(groups, DirectoryGroup{Directory: dir})
		}
		groups[i].Count++
		groups[i].Uploads = append(groups[i].Uploads, u)
	}
	sort.Slice(groups, func(a, b int) bool {
		return groups[a].Directory < groups[b].Directory
	})
	return groups
}
