package backend

import "github.com/BaSui01/llmrelay/config"

// ModelStatus 是下拉列表中某个模型的安装状态
type ModelStatus struct {
	Name      string `json:"name"`
	Installed bool   `json:"installed"`
}

// CatalogModel 是推荐小模型；Installed 仅在能查询后端时给出
type CatalogModel struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Size        string `json:"size"`
	Installed   *bool  `json:"installed,omitempty"`
}

// Statuses 按 available 的顺序标注安装状态
func Statuses(available []string, installed map[string]bool) []ModelStatus {
	out := make([]ModelStatus, 0, len(available))
	for _, name := range available {
		out = append(out, ModelStatus{Name: name, Installed: installed[name]})
	}
	return out
}

// Catalog 把配置中的推荐模型转换为响应项。installed 为 nil 时不标注安装状态。
func Catalog(entries []config.CatalogEntry, installed map[string]bool) []CatalogModel {
	out := make([]CatalogModel, 0, len(entries))
	for _, e := range entries {
		m := CatalogModel{Name: e.Name, Description: e.Description, Size: e.Size}
		if installed != nil {
			ok := installed[e.Name]
			m.Installed = &ok
		}
		out = append(out, m)
	}
	return out
}
