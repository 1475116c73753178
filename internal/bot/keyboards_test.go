package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data    string
		action  string
		args    []string
		wantErr bool
	}{
		{data: "choose_month:январь 24", action: cbChooseMonth, args: []string{"январь 24"}},
		{data: "rate:3:7", action: cbRate, args: []string{"3", "7"}},
		{data: "hist:12", action: cbHistory, args: []string{"12"}},
		{data: "cmp:12:9", action: cbCompare, args: []string{"12", "9"}},
		{data: "clean_sel:all", action: cbCleanSelect, args: []string{"all"}},
		{data: "clean_conf:account:no", action: cbCleanConfirm, args: []string{"account", "no"}},
		{data: "choose_month:", wantErr: true},
		{data: "rate:3", wantErr: true},
		{data: "rate:3:7:1", wantErr: true},
		{data: "cmp::9", wantErr: true},
		{data: "boom:1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			cb, err := parseCallback(tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, errBadCallback)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.action, cb.action)
			assert.Equal(t, tt.args, cb.args)
		})
	}
}

func TestCallbackIntArgs(t *testing.T) {
	cb, err := parseCallback("rate:x:7")
	require.NoError(t, err)
	_, err = cb.intArg(0)
	assert.ErrorIs(t, err, errBadCallback)
	v, err := cb.intArg(1)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	_, err = cb.intArg(2)
	assert.Error(t, err)
}

func TestRatingKeyboard(t *testing.T) {
	kb := ratingKeyboard(4)
	require.Len(t, kb.InlineKeyboard, 2)
	for _, row := range kb.InlineKeyboard {
		assert.Len(t, row, 5)
	}
	first := kb.InlineKeyboard[0][0]
	last := kb.InlineKeyboard[1][4]
	assert.Equal(t, "1", first.Text)
	assert.Equal(t, "rate:4:1", *first.CallbackData)
	assert.Equal(t, "10", last.Text)
	assert.Equal(t, "rate:4:10", *last.CallbackData)
}

func TestCallbackDataFitsTelegramLimit(t *testing.T) {
	for _, label := range []string{"сентябрь 24", "за сентябрь 2024"} {
		kb := monthKeyboard([]string{label})
		assert.LessOrEqual(t, len(*kb.InlineKeyboard[0][0].CallbackData), 64)
	}
}
