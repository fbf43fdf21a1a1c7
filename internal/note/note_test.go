package note

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestUrgencyHint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		hint any
		want Urgency
		ok   bool
	}{
		{byte(2), UrgencyCritical, true},
		{int(0), UrgencyLow, true},
		{int32(1), UrgencyNormal, true},
		{uint32(2), UrgencyCritical, true},
		{float64(1), UrgencyNormal, true},
		{"critical", UrgencyCritical, true},
		{"1", UrgencyNormal, true},
		{uint32(258), 0, false},
		{int(514), 0, false},
		{int64(-254), 0, false},
		{uint64(math.MaxUint64), 0, false},
		{float64(3), 0, false},
		{float64(-1), 0, false},
		{math.NaN(), 0, false},
		{"urgent", 0, false},
		{true, 0, false},
	}
	for _, tc := range cases {
		n := New("s", "", epoch)
		n.Hints["urgency"] = tc.hint
		got, ok := n.Urgency()
		assert.Equal(t, tc.ok, ok, "hint %T(%v)", tc.hint, tc.hint)
		assert.Equal(t, tc.want, got, "hint %T(%v)", tc.hint, tc.hint)
	}

	n := New("s", "", epoch)
	_, ok := n.Urgency()
	assert.False(t, ok)
	assert.False(t, n.Critical())

	n.Hints["urgency"] = uint32(258)
	assert.False(t, n.Critical(), "out of range values are not critical")
	assert.True(t, System("s", "", epoch).Critical())
}

func TestParseUrgency(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Urgency{"low": UrgencyLow, " Normal ": UrgencyNormal, "CRITICAL": UrgencyCritical, "2": UrgencyCritical} {
		got, err := ParseUrgency(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseUrgency("3")
	assert.ErrorContains(t, err, "0-2 range")
	_, err = ParseUrgency("loud")
	assert.ErrorContains(t, err, "unrecognized urgency")

	assert.Equal(t, "normal", UrgencyNormal.String())
	assert.Equal(t, "urgency(7)", Urgency(7).String())
}

func TestCloseReasonRoundTrip(t *testing.T) {
	t.Parallel()

	for _, r := range []CloseReason{ReasonExpired, ReasonDismissed, ReasonClosed, ReasonUndefined} {
		got, err := ParseCloseReason(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := ParseCloseReason("reason(9)")
	assert.Error(t, err)
}

func TestPlainText(t *testing.T) {
	t.Parallel()

	n := New("<b>title</b>", `<b>bold</b> &amp; <a href="x">link</a> 1 &lt; 2`, epoch)
	summary, body := n.PlainText()
	assert.Equal(t, "<b>title</b>", summary, "summary carries no markup")
	assert.Equal(t, "bold & link 1 < 2", body)

	n.Plain = &Plain{Summary: "cached", Body: "plain"}
	summary, body = n.PlainText()
	assert.Equal(t, "cached", summary)
	assert.Equal(t, "plain", body)
}

func TestDigest(t *testing.T) {
	t.Parallel()

	notes := []*Notification{New("a", "one", epoch), New("b", "two", epoch)}
	d := Digest(notes, 0, epoch.Add(time.Minute))
	assert.Equal(t, "Feed", d.Summary)
	assert.Equal(t, "--- a\n  one\n\n--- b\n  two", d.Body)
	assert.Equal(t, DigestAppName, d.AppName)
	assert.Equal(t, DigestIcon, d.Icon)
	assert.Equal(t, epoch.Add(time.Minute), d.Created)
	assert.Equal(t, TimeoutDefault, d.Timeout)

	assert.Equal(t, "Feed (3 dropped)", Digest(notes, 3, epoch).Summary)
}

func TestCloneSharesNothing(t *testing.T) {
	t.Parallel()

	n := New("s", "b", epoch)
	n.Actions = []string{"open", "Open", "later"}
	n.Plain = &Plain{Summary: "s"}
	cp := n.Clone()
	cp.Actions[0] = "x"
	cp.Hints["k"] = 1
	cp.Plain.Summary = "changed"

	assert.Equal(t, "open", n.Actions[0])
	assert.NotContains(t, n.Hints, "k")
	assert.Equal(t, "s", n.Plain.Summary)
	assert.Equal(t, [][2]string{{"open", "Open"}}, n.ActionPairs(), "odd trailing key ignored")
}
