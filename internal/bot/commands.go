package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/yogaroll/internal/app"
	"github.com/shrimpsizemoose/yogaroll/internal/models"
)

const (
	helpText = `Comandos disponibles:
/roster - Ver alumnos
/today - Marcar asistencia de hoy
/register - Registrar alumno (paso a paso)
/register <nombre> <apellido> [teléfono] - Registrar alumno en una línea (nombres compuestos: paso a paso)
/mark <id> presente|ausente [AAAA-MM-DD] - Marcar asistencia
/report <AAAA-MM-DD> - Asistencia de un día
/cancel - Cancelar el registro en curso
/help - Mostrar este mensaje`

	togglePrefix = "toggle:"
	skipPhone    = "-"
)

type commandHandler func(context.Context, *tgbotapi.Message) error

func (b *Bot) routeCommands(cmd string) (commandHandler, bool) {
	commands := map[string]commandHandler{
		"start":    b.handleStart,
		"help":     b.handleHelp,
		"roster":   b.handleRoster,
		"today":    b.handleToday,
		"register": b.handleRegister,
		"mark":     b.handleMark,
		"report":   b.handleReport,
		"cancel":   b.handleCancel,
	}
	handler, found := commands[cmd]
	return handler, found
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	var err error
	if msg.IsCommand() {
		handler, ok := b.routeCommands(msg.Command())
		if !ok {
			b.sendHelp(msg.Chat.ID)
			return
		}
		err = handler(ctx, msg)
	} else {
		err = b.handleConversation(ctx, msg)
	}

	if err != nil {
		logger.Error.Printf("Command error: %v", err)
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("Error: %v", err))
	}
}

func (b *Bot) handleHelp(ctx context.Context, msg *tgbotapi.Message) error {
	return b.sendMessage(msg.Chat.ID, helpText)
}

func (b *Bot) sendHelp(chatID int64) error {
	return b.sendMessage(chatID, "Usá los comandos para hablar conmigo. Enviá /help para ver la lista.")
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	text := fmt.Sprintf("¡Hola! Soy el asistente de asistencia de %s 🧘\n\n%s", b.config.Studio.Name, helpText)
	return b.sendMessage(msg.Chat.ID, text)
}

func (b *Bot) handleRoster(ctx context.Context, msg *tgbotapi.Message) error {
	roster, err := b.service.RosterSummary(ctx)
	if err != nil {
		return fmt.Errorf("no pude leer la lista de alumnos")
	}

	if len(roster.Students) == 0 {
		return b.sendMessage(msg.Chat.ID, "Todavía no hay alumnos registrados")
	}

	var text strings.Builder
	text.WriteString(fmt.Sprintf("Alumnos (%d, registrados hoy: %d):\n\n", len(roster.Students), roster.RegisteredToday))
	for _, s := range roster.Students {
		text.WriteString(fmt.Sprintf("%d. %s, %s", s.ID, s.LastName, s.FirstName))
		if phone := s.PhoneOrEmpty(); phone != "" {
			text.WriteString(" 📞 " + phone)
		}
		text.WriteString("\n")
	}

	return b.sendMessage(msg.Chat.ID, text.String())
}

func (b *Bot) handleToday(ctx context.Context, msg *tgbotapi.Message) error {
	rows, err := b.service.ListTodayAttendance(ctx)
	if err != nil {
		return fmt.Errorf("no pude leer la asistencia de hoy")
	}

	if len(rows) == 0 {
		return b.sendMessage(msg.Chat.ID, "Todavía no hay alumnos registrados")
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, b.todayHeader(rows))
	reply.ReplyMarkup = todayKeyboard(rows)
	_, err = b.api.Send(reply)
	return err
}

func (b *Bot) handleRegister(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())

	if len(args) == 0 {
		if err := b.state.Start(ctx, msg.Chat.ID); err != nil {
			return err
		}
		return b.sendMessage(msg.Chat.ID, "Nuevo alumno. ¿Nombre?")
	}

	if len(args) < 2 {
		return fmt.Errorf("uso: /register <nombre> <apellido> [teléfono]")
	}

	phone := strings.Join(args[2:], " ")
	if phone != "" && !looksLikePhone(phone) {
		return fmt.Errorf("%q no parece un teléfono; para nombres o apellidos compuestos usá /register sin argumentos", phone)
	}

	return b.register(ctx, msg.Chat.ID, args[0], args[1], phone)
}

// looksLikePhone accepts digits with the usual separators and nothing else.
func looksLikePhone(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune("+-(). ", r):
		default:
			return false
		}
	}
	return digits > 0
}

func (b *Bot) register(ctx context.Context, chatID int64, firstName, lastName, phone string) error {
	id, err := b.service.RegisterStudent(ctx, firstName, lastName, phone)
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		return fmt.Errorf("datos inválidos: %s", verr.Summary())
	case err != nil:
		return fmt.Errorf("no pude registrar al alumno")
	}

	return b.sendMessage(chatID, fmt.Sprintf("✅ Alumno registrado: %s %s (id %d)",
		strings.TrimSpace(firstName),
		strings.TrimSpace(lastName),
		id,
	))
}

// handleConversation feeds plain text into a /register flow if one is open.
func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	reg, err := b.state.Fetch(ctx, msg.Chat.ID)
	if err != nil {
		return err
	}
	if reg == nil {
		return b.sendHelp(msg.Chat.ID)
	}

	answer := strings.TrimSpace(msg.Text)

	switch reg.Step {
	case StepFirstName:
		if answer == "" {
			return b.sendMessage(msg.Chat.ID, "El nombre es obligatorio. ¿Nombre?")
		}
		if err := b.state.Advance(ctx, msg.Chat.ID, StepFirstName, answer, StepLastName); err != nil {
			return err
		}
		return b.sendMessage(msg.Chat.ID, "¿Apellido?")

	case StepLastName:
		if answer == "" {
			return b.sendMessage(msg.Chat.ID, "El apellido es obligatorio. ¿Apellido?")
		}
		if err := b.state.Advance(ctx, msg.Chat.ID, StepLastName, answer, StepPhone); err != nil {
			return err
		}
		return b.sendMessage(msg.Chat.ID, "¿Teléfono? (enviá - para omitir)")

	case StepPhone:
		if answer == skipPhone {
			answer = ""
		}
		if err := b.state.Clear(ctx, msg.Chat.ID); err != nil {
			return err
		}
		return b.register(ctx, msg.Chat.ID, reg.FirstName, reg.LastName, answer)

	default:
		b.state.Clear(ctx, msg.Chat.ID)
		return fmt.Errorf("registro en estado desconocido, empezá de nuevo con /register")
	}
}

func (b *Bot) handleCancel(ctx context.Context, msg *tgbotapi.Message) error {
	if err := b.state.Clear(ctx, msg.Chat.ID); err != nil {
		return err
	}
	return b.sendMessage(msg.Chat.ID, "Registro cancelado")
}

func (b *Bot) handleMark(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 2 {
		return fmt.Errorf("uso: /mark <id> presente|ausente [AAAA-MM-DD]")
	}

	studentID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || studentID <= 0 {
		return fmt.Errorf("id de alumno inválido: %s", args[0])
	}

	present, err := parsePresence(args[1])
	if err != nil {
		return err
	}

	day := b.service.Today()
	if len(args) > 2 {
		day, err = models.ParseDay(args[2])
		if err != nil {
			return fmt.Errorf("fecha inválida (usá AAAA-MM-DD): %s", args[2])
		}
	}

	if err := b.service.SetAttendanceFrom(ctx, app.SourceBot, studentID, day, present); err != nil {
		return fmt.Errorf("no pude guardar la asistencia del alumno %d", studentID)
	}

	status := models.StatusAbsent
	if present {
		status = models.StatusPresent
	}
	return b.sendMessage(msg.Chat.ID, fmt.Sprintf("%s Alumno %d: %s el %s",
		statusIcon(status),
		studentID,
		statusLabel(status),
		day.Format(b.config.Display.DateFormat),
	))
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		return fmt.Errorf("uso: /report <AAAA-MM-DD>")
	}

	day, err := models.ParseDay(arg)
	if err != nil {
		return fmt.Errorf("fecha inválida (usá AAAA-MM-DD): %s", arg)
	}

	rows, err := b.service.DailyReport(ctx, day)
	if err != nil {
		return fmt.Errorf("no pude leer la asistencia del %s", arg)
	}

	if len(rows) == 0 {
		return b.sendMessage(msg.Chat.ID, "Todavía no hay alumnos registrados")
	}

	var text strings.Builder
	text.WriteString(fmt.Sprintf("Asistencia del %s:\n\n", day.Format(b.config.Display.DateFormat)))
	for _, row := range rows {
		text.WriteString(fmt.Sprintf("%s %s, %s: %s\n",
			statusIcon(row.Status),
			row.Student.LastName,
			row.Student.FirstName,
			statusLabel(row.Status),
		))
	}

	return b.sendMessage(msg.Chat.ID, text.String())
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	answer := func(text string) {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
			logger.Error.Printf("Failed to answer callback: %v", err)
		}
	}

	if !strings.HasPrefix(cb.Data, togglePrefix) || cb.Message == nil {
		answer("")
		return
	}

	studentID, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, togglePrefix), 10, 64)
	if err != nil {
		answer("Botón inválido")
		return
	}

	status, err := b.service.ToggleToday(ctx, app.SourceBot, studentID)
	if err != nil {
		logger.Error.Printf("Toggle failed for student %d: %v", studentID, err)
		answer("No pude guardar la asistencia")
		return
	}
	answer(statusLabel(status))

	rows, err := b.service.ListTodayAttendance(ctx)
	if err != nil {
		logger.Error.Printf("Failed to refresh attendance sheet: %v", err)
		return
	}

	edit := tgbotapi.NewEditMessageTextAndMarkup(
		cb.Message.Chat.ID,
		cb.Message.MessageID,
		b.todayHeader(rows),
		todayKeyboard(rows),
	)
	if _, err := b.api.Send(edit); err != nil {
		logger.Error.Printf("Failed to refresh attendance sheet: %v", err)
	}
}

func (b *Bot) todayHeader(rows []models.RosterEntry) string {
	present := 0
	for _, row := range rows {
		if row.Status == models.StatusPresent {
			present++
		}
	}
	return fmt.Sprintf("Asistencia del día %s\nPresentes: %d de %d\nTocá un alumno para cambiar su estado.",
		b.service.Today().Format(b.config.Display.DateFormat),
		present,
		len(rows),
	)
}

func todayKeyboard(rows []models.RosterEntry) tgbotapi.InlineKeyboardMarkup {
	buttons := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		label := fmt.Sprintf("%s %s, %s", statusIcon(row.Status), row.Student.LastName, row.Student.FirstName)
		data := togglePrefix + strconv.FormatInt(row.Student.ID, 10)
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, data),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(buttons...)
}

func parsePresence(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "presente", "present", "p", "si", "sí", "1":
		return true, nil
	case "ausente", "absent", "a", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("estado desconocido: %s (usá presente o ausente)", s)
	}
}

func statusIcon(s models.Status) string {
	switch s {
	case models.StatusPresent:
		return "✅"
	case models.StatusAbsent:
		return "❌"
	default:
		return "⬜"
	}
}

func statusLabel(s models.Status) string {
	switch s {
	case models.StatusPresent:
		return "Presente"
	case models.StatusAbsent:
		return "Ausente"
	default:
		return "Sin marcar"
	}
}

func (b *Bot) sendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}
