package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page 是 index.html 的渲染数据
type Page struct {
	Title        string
	Models       []string
	DefaultModel string
}

// Index 已解析的首页模板
type Index struct {
	tmpl *template.Template
}

// ParseIndex 解析内嵌的首页模板
func ParseIndex() (*Index, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse index template: %w", err)
	}
	return &Index{tmpl: tmpl}, nil
}

// Render 把页面写入 w
func (i *Index) Render(w io.Writer, page Page) error {
	return i.tmpl.ExecuteTemplate(w, "index.html", page)
}

// Static 返回静态资源文件系统。dir 非空时使用磁盘目录。
func Static(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(staticFS, "static")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("static dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("static dir %s is not a directory", dir)
	}
	return os.DirFS(dir), nil
}
