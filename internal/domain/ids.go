package domain

import (
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Префиксы идентификаторов сущностей леджера.
const (
	IDPrefixObligation = "obl"
	IDPrefixSettlement = "stl"
	IDPrefixAccount    = "acct"
	IDPrefixLineItem   = "li"
)

// NewID генерирует сортируемый идентификатор вида prefix_suffix.
func NewID(prefix string) string {
	tid, err := typeid.Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("domain: invalid id prefix %q: %v", prefix, err))
	}
	return tid.String()
}

// HasIDPrefix проверяет, что строка похожа на идентификатор с указанным префиксом.
func HasIDPrefix(id, prefix string) bool {
	tid, err := typeid.Parse(strings.TrimSpace(id))
	if err != nil {
		return false
	}
	return tid.Prefix() == prefix
}
