package bot

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/xaenox/wheel-bot/internal/models"
)

// Callback data prefixes. Arguments follow, separated by colons.
const (
	cbChooseMonth  = "choose_month"
	cbRate         = "rate"
	cbHistory      = "hist"
	cbCompare      = "cmp"
	cbCleanSelect  = "clean_sel"
	cbCleanConfirm = "clean_conf"
)

const (
	targetAll     = "all"
	targetAccount = "account"
)

var errBadCallback = errors.New("malformed callback data")

type callback struct {
	action string
	args   []string
}

func (c callback) int64Arg(i int) (int64, error) {
	if i >= len(c.args) {
		return 0, errBadCallback
	}
	v, err := strconv.ParseInt(c.args[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errBadCallback, c.args[i])
	}
	return v, nil
}

func (c callback) intArg(i int) (int, error) {
	v, err := c.int64Arg(i)
	return int(v), err
}

// parseCallback splits data into an action and its arguments. Month labels
// are passed whole.
func parseCallback(data string) (callback, error) {
	action, rest, _ := strings.Cut(data, ":")
	want := map[string]int{
		cbChooseMonth:  1,
		cbRate:         2,
		cbHistory:      1,
		cbCompare:      2,
		cbCleanSelect:  1,
		cbCleanConfirm: 2,
	}
	n, ok := want[action]
	if !ok {
		return callback{}, fmt.Errorf("%w: unknown action %q", errBadCallback, action)
	}
	if action == cbChooseMonth {
		if rest == "" {
			return callback{}, errBadCallback
		}
		return callback{action: action, args: []string{rest}}, nil
	}
	args := strings.Split(rest, ":")
	if len(args) != n || slices.Contains(args, "") {
		return callback{}, fmt.Errorf("%w: %q", errBadCallback, data)
	}
	return callback{action: action, args: args}, nil
}

func monthKeyboard(labels []string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(labels))
	for _, l := range labels {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(l, cbChooseMonth+":"+l)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// ratingKeyboard is two rows, 1-5 and 6-10, for the category at idx.
func ratingKeyboard(idx int) tgbotapi.InlineKeyboardMarkup {
	row := func(from, to int) []tgbotapi.InlineKeyboardButton {
		var btns []tgbotapi.InlineKeyboardButton
		for v := from; v <= to; v++ {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(
				strconv.Itoa(v), fmt.Sprintf("%s:%d:%d", cbRate, idx, v)))
		}
		return btns
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		row(models.MinScore, 5),
		row(6, models.MaxScore),
	)
}

func wheelButtonText(w *models.Wheel) string {
	return fmt.Sprintf("%s (%s)", w.Name, w.CreatedAt.Format("2006-01-02"))
}

func historyKeyboard(wheels []*models.Wheel) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(wheels))
	for _, w := range wheels {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(wheelButtonText(w), fmt.Sprintf("%s:%d", cbHistory, w.ID))))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func compareKeyboard(selected, baseline int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(compareButton, fmt.Sprintf("%s:%d:%d", cbCompare, selected, baseline))))
}

func cleanKeyboard(wheels []*models.Wheel) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(wheels)+2)
	for _, w := range wheels {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(wheelButtonText(w), fmt.Sprintf("%s:%d", cbCleanSelect, w.ID))))
	}
	if len(wheels) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(allWheelsButton, cbCleanSelect+":"+targetAll)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(accountButton, cbCleanSelect+":"+targetAccount)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func confirmKeyboard(target string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(yesButton, fmt.Sprintf("%s:%s:yes", cbCleanConfirm, target)),
		tgbotapi.NewInlineKeyboardButtonData(noButton, fmt.Sprintf("%s:%s:no", cbCleanConfirm, target)),
	))
}
