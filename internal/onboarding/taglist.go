package onboarding

import "strings"

// TagList 标签类输入（兴趣、语言、空闲时段、学习目标等）。
// 保持插入顺序，元素去除首尾空白后唯一。
type TagList []string

// Add 添加标签；空字符串或已存在的标签（区分大小写）不做处理
func (l TagList) Add(item string) TagList {
	item = strings.TrimSpace(item)
	if item == "" || l.Contains(item) {
		return l
	}
	return append(l, item)
}

// Remove 按完全相等删除
func (l TagList) Remove(item string) TagList {
	out := l[:0:0]
	for _, v := range l {
		if v != item {
			out = append(out, v)
		}
	}
	return out
}

// Contains 完全相等匹配
func (l TagList) Contains(item string) bool {
	for _, v := range l {
		if v == item {
			return true
		}
	}
	return false
}

// NormalizeTags 对任意输入列表做和 Add 相同的规整：去空白、去空项、去重
func NormalizeTags(in []string) []string {
	var l TagList
	for _, v := range in {
		l = l.Add(v)
	}
	return []string(l)
}
