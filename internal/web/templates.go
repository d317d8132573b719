package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// LikertScale 评估题的分值
var LikertScale = []int{1, 2, 3, 4, 5, 6, 7}

// Templates 解析内嵌的页面模板，模板名为文件名
func Templates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"scale": func() []int { return LikertScale },
	}).ParseFS(templateFS, "templates/*.html")
}
