package booking

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

// messages holds the user-facing strings of one locale.
type messages struct {
	tag                 language.Tag
	weekdays            [7]string
	months              [12]string
	dateLayout          string // %[1]s weekday, %[2]d day, %[3]s month
	confirmation        string // name, service, date, time
	defaultService      string
	chooseService       string
	chooseDate          string
	noSlots             string // date
	chooseSlot          string
	enterName           string
	slotTaken           string
	slotUnavailable     string
	calendarUnavailable string
	unknownStep         string
	phoneLabel          string
	notesLabel          string
}

var catalog = []messages{
	{
		tag:                 language.English,
		weekdays:            [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
		months:              [12]string{"January", "February", "March", "April", "May", "June", "July", "August", "September", "October", "November", "December"},
		dateLayout:          "%[1]s, %[3]s %[2]d",
		confirmation:        "Thanks, %s! Your %s is confirmed for %s at %s.",
		defaultService:      "Appointment",
		chooseService:       "Please choose a service.",
		chooseDate:          "Please choose a date.",
		noSlots:             "There are no free times on %s. Please choose another date.",
		chooseSlot:          "Please choose a time.",
		enterName:           "Please enter your name.",
		slotTaken:           "Sorry, that time was just booked. Please go back and pick another one.",
		slotUnavailable:     "That time can no longer be booked. Please pick another one.",
		calendarUnavailable: "We could not reach the calendar right now. Please try again in a moment.",
		unknownStep:         "Something went wrong with this step. Please try again.",
		phoneLabel:          "Phone",
		notesLabel:          "Notes",
	},
	{
		tag:                 language.Portuguese,
		weekdays:            [7]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"},
		months:              [12]string{"janeiro", "fevereiro", "março", "abril", "maio", "junho", "julho", "agosto", "setembro", "outubro", "novembro", "dezembro"},
		dateLayout:          "%[1]s, %[2]d de %[3]s",
		confirmation:        "Obrigado, %s! Seu horário de %s está confirmado para %s às %s.",
		defaultService:      "Atendimento",
		chooseService:       "Escolha um serviço.",
		chooseDate:          "Escolha uma data.",
		noSlots:             "Não há horários livres em %s. Escolha outra data.",
		chooseSlot:          "Escolha um horário.",
		enterName:           "Informe seu nome.",
		slotTaken:           "Desculpe, esse horário acabou de ser reservado. Volte e escolha outro.",
		slotUnavailable:     "Esse horário não pode mais ser reservado. Escolha outro.",
		calendarUnavailable: "Não conseguimos acessar a agenda agora. Tente novamente em instantes.",
		unknownStep:         "Algo deu errado nesta etapa. Tente novamente.",
		phoneLabel:          "Telefone",
		notesLabel:          "Observações",
	},
	{
		tag:                 language.Spanish,
		weekdays:            [7]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"},
		months:              [12]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"},
		dateLayout:          "%[1]s, %[2]d de %[3]s",
		confirmation:        "¡Gracias, %s! Tu cita de %s está confirmada para el %s a las %s.",
		defaultService:      "Cita",
		chooseService:       "Elige un servicio.",
		chooseDate:          "Elige una fecha.",
		noSlots:             "No hay horarios libres el %s. Elige otra fecha.",
		chooseSlot:          "Elige un horario.",
		enterName:           "Escribe tu nombre.",
		slotTaken:           "Lo sentimos, ese horario acaba de reservarse. Vuelve y elige otro.",
		slotUnavailable:     "Ese horario ya no se puede reservar. Elige otro.",
		calendarUnavailable: "No pudimos acceder al calendario. Inténtalo de nuevo en un momento.",
		unknownStep:         "Algo salió mal en este paso. Inténtalo de nuevo.",
		phoneLabel:          "Teléfono",
		notesLabel:          "Notas",
	},
}

var matcher = func() language.Matcher {
	tags := make([]language.Tag, len(catalog))
	for i, m := range catalog {
		tags[i] = m.tag
	}
	return language.NewMatcher(tags)
}()

// messagesFor picks the closest supported locale, falling back to English.
func messagesFor(locale string) messages {
	if locale == "" {
		return catalog[0]
	}
	_, idx := language.MatchStrings(matcher, locale)
	return catalog[idx]
}

// formatDate renders t's calendar date in words, e.g. "Tuesday, March 3".
func (m messages) formatDate(t time.Time) string {
	return fmt.Sprintf(m.dateLayout, m.weekdays[t.Weekday()], t.Day(), m.months[t.Month()-1])
}

func (m messages) confirm(name, service string, start time.Time) string {
	return fmt.Sprintf(m.confirmation, name, service, m.formatDate(start), start.Format("15:04"))
}

// weekdayAbbrev is the English three-letter weekday the date picker expects
// regardless of locale.
func weekdayAbbrev(wd time.Weekday) string {
	return wd.String()[:3]
}
