package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNotice_Listing(t *testing.T) {
	r := ParseNotice("[마켓 추가] 비트코인(BTC) 원화 마켓 추가", "")
	assert.Equal(t, NoticeListing, r.Type)
	assert.Contains(t, r.Symbols, "BTC")
}

func TestParseNotice_WithdrawalWarningUpgradesActionToTrade(t *testing.T) {
	r := ParseNotice("[공지] 이더리움(ETH) 출금 중단 안내", "")
	assert.Equal(t, NoticeWarning, r.Type)
	assert.Equal(t, SeverityMedium, r.Severity)
	assert.Equal(t, ActionTrade, r.Action)
	assert.Contains(t, r.Symbols, "ETH")
}

func TestParseNotice_WalletMaintenanceStaysMonitor(t *testing.T) {
	r := ParseNotice("[안내] 솔라나(SOL) 지갑 점검 안내", "")
	assert.Equal(t, NoticeWarning, r.Type)
	assert.Equal(t, ActionMonitor, r.Action)
}

func TestParseNotice_TradingHalt(t *testing.T) {
	r := ParseNotice("[긴급] 루나(LUNA) 거래 일시 중단", "")
	assert.Equal(t, NoticeHalt, r.Type)
	assert.Equal(t, SeverityHigh, r.Severity)
}

func TestParseNotice_Migration(t *testing.T) {
	r := ParseNotice("[안내] 폴리곤(MATIC) 토큰 전환", "기존 MATIC 토큰이 POL로 1:1 스왑됩니다.")
	assert.Equal(t, NoticeMigration, r.Type)
	assert.Equal(t, ActionAlert, r.Action)
}

func TestParseNotice_DepegTakesPriorityOverMigration(t *testing.T) {
	r := ParseNotice("[긴급] USDT 가격 급락 및 토큰 전환 안내", "")
	assert.Equal(t, NoticeDepeg, r.Type)
	assert.Equal(t, SeverityCritical, r.Severity)
}

func TestParseNotice_HaltTakesPriorityOverWarning(t *testing.T) {
	r := ParseNotice("[긴급] 이더리움(ETH) 거래 중단 및 출금 중단", "")
	assert.Equal(t, NoticeHalt, r.Type)
}

func TestParseNotice_ExtractsTimeHHMM(t *testing.T) {
	r := ParseNotice("[공지] 비트코인(BTC) 입출금 일시 중단", "지갑 점검으로 14:00부터 입출금이 중단됩니다.")
	assert.Equal(t, "14:00:00", r.ListingTime)
}

func TestParseNotice_UnknownWhenNoKeywordMatches(t *testing.T) {
	r := ParseNotice("이벤트 당첨자 발표", "")
	assert.Equal(t, NoticeUnknown, r.Type)
}

func TestDedupKey_StableForSameInputs(t *testing.T) {
	a := DedupKey("bithumb", NoticeListing, "https://bithumb.com/notice/123")
	b := DedupKey("bithumb", NoticeListing, "https://bithumb.com/notice/123")
	assert.Equal(t, a, b)
}

func TestDedupKey_DiffersAcrossExchanges(t *testing.T) {
	a := DedupKey("bithumb", NoticeListing, "same-id")
	b := DedupKey("upbit", NoticeListing, "same-id")
	assert.NotEqual(t, a, b)
}
