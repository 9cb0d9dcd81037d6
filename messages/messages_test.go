package messages

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestFormatEventEscapesHTML(t *testing.T) {
	price := "1500"
	age := "all"
	text := FormatEvent(EventCard{
		Name:        "Вечер <джаза>",
		Datetime:    "25.05.2025 19:00",
		Address:     "Тверская 1",
		Description: "Живая музыка & ужин",
		IsPaid:      true,
		Price:       &price,
		AgeGroup:    &age,
	})
	require.Contains(t, text, "<b>Вечер &lt;джаза&gt;</b>")
	require.Contains(t, text, "1500 ₽")
	require.Contains(t, text, "для всех")
	require.Contains(t, text, "Живая музыка &amp; ужин")
	require.Contains(t, text, "https://yandex.ru/maps/?text=")
}

func TestFormatEventFree(t *testing.T) {
	text := FormatEvent(EventCard{Name: "Пикник", Datetime: "01.06", Address: "Парк"})
	require.Contains(t, text, "бесплатно")
}

func TestFormatTopicName(t *testing.T) {
	require.Equal(t, "25.05 - Пикник", FormatTopicName("25.05", "Пикник"))
	require.Equal(t, "Пикник", FormatTopicName("", "Пикник"))

	long := strings.Repeat("я", 200)
	got := FormatTopicName("25.05.2025", long)
	require.Equal(t, 128, utf8.RuneCountInString(got))
	require.True(t, strings.HasPrefix(got, "25.05.2025 - "))
	require.True(t, strings.HasSuffix(got, "..."))
}

func TestFormatMember(t *testing.T) {
	name := "anna"
	require.Equal(t, "@anna", FormatMember(1, &name))
	require.Equal(t, "id:7", FormatMember(7, nil))
}

func TestFormatAdminClaim(t *testing.T) {
	amount := 500
	text := FormatAdminClaim("Ужин", 3, "@anna", &amount)
	require.Contains(t, text, "500 ₽")
	require.Contains(t, text, "(#3)")
	require.Contains(t, FormatAdminClaim("Ужин", 3, "@anna", nil), "Сумма: -")
}

func TestFormatMyEvents(t *testing.T) {
	require.Equal(t, MsgMyEventsEmpty, FormatMyEvents(nil))
	text := FormatMyEvents([][3]string{{"Ужин", "25.05", "confirmed"}})
	require.Contains(t, text, "подтверждено")
}
