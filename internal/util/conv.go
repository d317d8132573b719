package util

import (
	"strconv"
	"strings"
)

// ParseTrial 解析表单中的 trial 字段，缺失或格式错误时返回 0
func ParseTrial(s string) int {
	trial, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return trial
}

// InRange 判断 trial 是否落在 [0, total) 内
func InRange(trial, total int) bool {
	return trial >= 0 && trial < total
}

// QuestionKey 题号对应的表单字段名
func QuestionKey(id int) string {
	return "q" + strconv.Itoa(id)
}
