package reportmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	judicial := Lookup(CodeJudicial)
	assert.Equal(t, "JudicialResult", judicial.Component)
	assert.Equal(t, "司法涉诉", judicial.Title)
	assert.Equal(t, "judicial-result", judicial.MenuID)

	entJudicial := Lookup(CodeEnterpriseJudicial)
	assert.Equal(t, "Enterprise_JudicialResult", entJudicial.Component)
	assert.Equal(t, "企业综合涉诉", entJudicial.Title)

	detail := Lookup("LIMIT_LOW")
	assert.Equal(t, "失信被执行", detail.Title)
	assert.Empty(t, detail.Component)
}

func TestLookup_UnknownCodeFallsBack(t *testing.T) {
	entry := Lookup("QYXX1234")
	assert.Equal(t, "其他", entry.Title)
	assert.Equal(t, "ph:files-bold", entry.Icon)
}

func TestIsEnterprise(t *testing.T) {
	assert.True(t, IsEnterprise(CodeEnterpriseOverview))
	assert.True(t, IsEnterprise(CodeEnterpriseJudicial))
	assert.False(t, IsEnterprise(CodeJudicial))
	assert.False(t, IsEnterprise("QYXX9999"))
}

func TestSubItems(t *testing.T) {
	judicial := SubItems(CodeJudicial)
	assert.Len(t, judicial, 9)
	assert.Equal(t, "BANKRUPT", judicial[0].Code)
	assert.Equal(t, "LIMIT_LOW", judicial[8].Code)

	// Personal and enterprise judicial reports share the same tab set
	assert.Equal(t, judicial, SubItems(CodeEnterpriseJudicial))

	assert.Nil(t, SubItems(CodeReportOverview))
}

func TestJudicialDetailItems_ExcludeLimitCodes(t *testing.T) {
	assert.Len(t, JudicialDetailItems, 7)
	assert.NotContains(t, JudicialDetailItems, "LIMIT_HIGH")
	assert.NotContains(t, JudicialDetailItems, "LIMIT_LOW")
}

func TestCatalog_PersonalShadowsCommon(t *testing.T) {
	catalog := Catalog()
	assert.Equal(t, "JudicialResult", catalog[CodeJudicial].Component)
	assert.Equal(t, "其他", catalog[CodeDefault].Title)
	assert.Contains(t, catalog, "MARRIAGE")
}
