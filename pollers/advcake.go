package pollers

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"holclub_bot/database"
	"holclub_bot/deeplink"
	"holclub_bot/registration"
)

const (
	AdvCakeExportURL = "https://api.advcake.com/export/webmaster"
	// AdvCakeApproved: статус подтверждённого заказа.
	AdvCakeApproved = 2
)

// Order: заказ из выгрузки AdvCake.
type Order struct {
	OrderID    string
	Status     int
	Sub1       string
	ClickID    string
	Price      string
	DateChange string
}

type xmlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type xmlItem struct {
	Fields []xmlField `xml:",any"`
}

// ParseOrders разбирает XML-выгрузку. Пространства имён игнорируются,
// элементы <item> ищутся на любой глубине.
func ParseOrders(r io.Reader) ([]Order, error) {
	dec := xml.NewDecoder(r)
	var orders []Order
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return orders, nil
		}
		if err != nil {
			return nil, fmt.Errorf("разбор XML AdvCake: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "item" {
			continue
		}
		var item xmlItem
		if err := dec.DecodeElement(&item, &start); err != nil {
			return nil, fmt.Errorf("разбор item AdvCake: %w", err)
		}
		orders = append(orders, item.order())
	}
}

func (it xmlItem) order() Order {
	data := make(map[string]string, len(it.Fields))
	for _, f := range it.Fields {
		data[f.XMLName.Local] = strings.TrimSpace(f.Value)
	}
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := data[k]; v != "" {
				return v
			}
		}
		return ""
	}
	status, err := strconv.Atoi(first("status", "status_id"))
	if err != nil {
		status = -1
	}
	return Order{
		OrderID:    first("order_id", "id"),
		Status:     status,
		Sub1:       data["sub1"],
		ClickID:    data["click_id"],
		Price:      data["price"],
		DateChange: first("date_change", "updated_at"),
	}
}

// AdvCakeClient забирает выгрузку заказов за последние days дней.
type AdvCakeClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
	days    int
}

func NewAdvCakeClient(apiKey string, days int) *AdvCakeClient {
	return &AdvCakeClient{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: AdvCakeExportURL,
		apiKey:  apiKey,
		days:    days,
	}
}

func (c *AdvCakeClient) FetchOrders(ctx context.Context) ([]Order, error) {
	if c.apiKey == "" {
		return nil, nil
	}
	endpoint := c.baseURL + "/" + url.PathEscape(c.apiKey) + "?days=" + strconv.Itoa(c.days)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос AdvCake: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return nil, fmt.Errorf("AdvCake API status=%d body=%s", resp.StatusCode, body)
	}
	return ParseOrders(resp.Body)
}

type OrderSource interface {
	FetchOrders(ctx context.Context) ([]Order, error)
}

type UserEnsurer interface {
	AddUser(ctx context.Context, id int64, username *string, role database.Role) error
}

type PurchaseConfirmer interface {
	ConfirmExternalPurchase(ctx context.Context, eventID, userID int64) (registration.Result, error)
}

// AdvCakePoller подтверждает участие по одобренным заказам с меткой sub1 = "<event>_<user>".
type AdvCakePoller struct {
	source    OrderSource
	users     UserEnsurer
	confirmer PurchaseConfirmer
}

func NewAdvCakePoller(source OrderSource, users UserEnsurer, confirmer PurchaseConfirmer) *AdvCakePoller {
	return &AdvCakePoller{source: source, users: users, confirmer: confirmer}
}

// PollOnce обрабатывает одну выгрузку и возвращает число новых подтверждений.
// Каждый заказ обрабатывается в своей транзакции внутри ConfirmExternalPurchase.
func (p *AdvCakePoller) PollOnce(ctx context.Context) (int, error) {
	orders, err := p.source.FetchOrders(ctx)
	if err != nil {
		return 0, err
	}

	confirmed := 0
	for _, o := range orders {
		if o.Status != AdvCakeApproved {
			continue
		}
		eventID, userID, ok := deeplink.ParseSub1(o.Sub1)
		if !ok {
			continue
		}
		if err := p.users.AddUser(ctx, userID, nil, database.RoleUser); err != nil {
			return confirmed, fmt.Errorf("пользователь %d: %w", userID, err)
		}
		res, err := p.confirmer.ConfirmExternalPurchase(ctx, eventID, userID)
		if errors.Is(err, registration.ErrNotFound) {
			log.Printf("AdvCake: заказ %s на неизвестное мероприятие %d", o.OrderID, eventID)
			continue
		}
		if err != nil {
			return confirmed, err
		}
		if res.Outcome == registration.OutcomeOK {
			log.Printf("AdvCake: заказ %s подтвердил event_id=%d user_id=%d", o.OrderID, eventID, userID)
			confirmed++
		}
	}
	return confirmed, nil
}

// Poll: итерация для Run.
func (p *AdvCakePoller) Poll(ctx context.Context) error {
	_, err := p.PollOnce(ctx)
	return err
}
