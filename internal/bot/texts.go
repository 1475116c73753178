package bot

import (
	"fmt"
	"strings"

	"github.com/xaenox/wheel-bot/internal/models"
)

const (
	startText = `Привет! Я помогу тебе построить Колесо баланса жизни 🎯

Каждый месяц ты оцениваешь восемь сфер жизни по шкале от 1 до 10, а я рисую диаграмму и пишу короткий разбор.

Команды:
/Построить_колесо - оценить один из последних трёх месяцев
/Посмотреть_историю - открыть построенные колеса
/compare - сравнить колесо с прошлым месяцем
/clean - удалить колеса или аккаунт
/cancel - прервать построение
/about - о сферах колеса`

	unknownText      = "Неизвестная команда. Используй /start, чтобы увидеть список команд."
	allFilledText    = "За последние три месяца все колеса уже созданы. Используй /history"
	chooseMonthText  = "Выбери месяц, за который хочешь построить колесо:"
	ratingPromptText = "<b>[%s]</b>\nОцени по шкале от 1 до 10:"
	wheelCreatedText = "✓ Колесо создано! Рисую красивую диаграмму, мне нужно немного времени..."
	staleSessionText = "Сессия устарела, начни заново: /Построить_колесо"
	monthTakenText   = "Колесо за этот месяц уже есть. Используй /history"
	monthGoneText    = "Этот месяц недоступен, начни заново: /Построить_колесо"
	imageFailedText  = "Не удалось нарисовать диаграмму"
	cancelledText    = "Построение колеса отменено"
	nothingToCancel  = "Сейчас ничего не строится"

	emptyHistoryText = "История пуста"
	historyText      = "Твоя история колес:"
	wheelMissingText = "Колесо не найдено"
	selfCompareText  = "Не могу сравнить месяц сам с собой"
	compareHintText  = "/compare - Сравнить с последним"
	compareButton    = "Сравнить с последним"
	noCompareText    = "Недостаточно данных для сравнения"
	comparingText    = "Формирую результаты сравнения, мне нужно немного времени... "
	compareFailText  = "Не удалось построить сравнение"

	noWheelsText      = "У вас нет колес для удаления"
	chooseDeleteText  = "Выберите колесо для удаления"
	allWheelsButton   = "все колеса"
	accountButton     = "удалить аккаунт"
	confirmDeleteText = "Вы точно желаете удалить данные? Их невозможно будет восстановить!"
	yesButton         = "Да"
	noButton          = "Нет"
	cancelText        = "Отменено"
	allDeletedText    = "✓ Все колеса удалены"
	oneDeletedText    = "✓ Колесо удалено"
	accountGoneText   = "✓ Все данные удалены"

	noRightsText  = "❌ У тебя нет прав на эту команду"
	internalError = "Что-то пошло не так, попробуй ещё раз позже."
)

func aboutText() string {
	var sb strings.Builder
	sb.WriteString("Колесо баланса состоит из восьми сфер:\n\n")
	for i, c := range models.Categories {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c)
	}
	sb.WriteString("\nОценивай каждую честно: 1 - совсем плохо, 10 - лучше не бывает. ")
	sb.WriteString("Раз в месяц строй новое колесо и сравнивай его с предыдущим.")
	return sb.String()
}

func statsText(s *models.Statistics) string {
	return fmt.Sprintf("📊 Статистика за 30 дней\n\nНовых пользователей: %d\nСоздано колес: %d\nНеактивных пользователей: %d",
		s.NewUsers, s.WheelsCreated, s.InactiveUsers)
}
