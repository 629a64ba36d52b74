package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cenkalti/backoff/v4"

	"github.com/joao-fontenele/posflow/internal/domain"
	"github.com/joao-fontenele/posflow/internal/notify"
)

// ReceiptNotifier reacts to invoice events: it sends the customer a receipt
// or cancellation notice and alerts staff when a sale leaves a product at or
// below its reorder point.
type ReceiptNotifier struct {
	notifyServiceURL    string
	inventoryServiceURL string
	companyName         string
	countryCode         string
	httpClient          *http.Client
	logger              *slog.Logger
}

func NewReceiptNotifier(notifyServiceURL, inventoryServiceURL, companyName, countryCode string, client *http.Client, logger *slog.Logger) *ReceiptNotifier {
	return &ReceiptNotifier{
		notifyServiceURL:    notifyServiceURL,
		inventoryServiceURL: inventoryServiceURL,
		companyName:         companyName,
		countryCode:         countryCode,
		httpClient:          client,
		logger:              logger,
	}
}

func (n *ReceiptNotifier) Handle(ctx context.Context, topic string, payload []byte) error {
	var event domain.InvoiceEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: unmarshal %s event: %w", errUndeliverable, topic, err))
	}

	switch topic {
	case domain.TopicInvoiceCreated:
		n.logger.InfoContext(ctx, "processing invoice created event", "invoice_id", event.InvoiceID, "invoice_number", event.InvoiceNumber)
		if err := n.sendReceipt(ctx, event); err != nil {
			return fmt.Errorf("send receipt: %w", err)
		}
		n.checkStock(ctx, event)

	case domain.TopicInvoiceCancelled:
		n.logger.InfoContext(ctx, "processing invoice cancelled event", "invoice_id", event.InvoiceID, "invoice_number", event.InvoiceNumber)
		if err := n.sendCancellation(ctx, event); err != nil {
			return fmt.Errorf("send cancellation notice: %w", err)
		}

	default:
		n.logger.WarnContext(ctx, "ignoring event from unexpected topic", "topic", topic)
	}

	return nil
}

func (n *ReceiptNotifier) sendReceipt(ctx context.Context, event domain.InvoiceEvent) error {
	phone := NormalizePhone(event.CustomerPhone, n.countryCode)
	if phone == "" {
		n.logger.InfoContext(ctx, "customer has no phone, receipt skipped", "invoice_id", event.InvoiceID, "customer_id", event.CustomerID)
		return nil
	}

	text := receiptText(event.CustomerName, n.companyName, event.InvoiceNumber, event.Total)
	return n.send(ctx, notify.Message{
		Channel: notify.ChannelWhatsApp,
		To:      phone,
		Subject: "Receipt " + event.InvoiceNumber,
		Body:    text,
		Link:    WhatsAppLink(phone, text),
	})
}

func (n *ReceiptNotifier) sendCancellation(ctx context.Context, event domain.InvoiceEvent) error {
	phone := NormalizePhone(event.CustomerPhone, n.countryCode)
	if phone == "" {
		return nil
	}

	text := fmt.Sprintf("Invoice %s from %s has been cancelled.", event.InvoiceNumber, n.companyName)
	return n.send(ctx, notify.Message{
		Channel: notify.ChannelWhatsApp,
		To:      phone,
		Subject: "Invoice cancelled " + event.InvoiceNumber,
		Body:    text,
		Link:    WhatsAppLink(phone, text),
	})
}

// checkStock is best effort: a failed lookup or alert is logged and the
// event is still acknowledged.
func (n *ReceiptNotifier) checkStock(ctx context.Context, event domain.InvoiceEvent) {
	for _, item := range event.Items {
		product, err := n.fetchProduct(ctx, item.ProductID)
		if err != nil {
			n.logger.ErrorContext(ctx, "failed to fetch product", "error", err, "product_id", item.ProductID)
			continue
		}
		if !product.NeedsRestock() {
			continue
		}

		n.logger.WarnContext(ctx, "product at or below reorder point",
			"product_id", product.ID, "stock", product.Stock, "reorder_point", product.ReorderPoint)

		err = n.send(ctx, notify.Message{
			Channel: notify.ChannelAlert,
			To:      "inventory",
			Subject: "Low stock: " + product.SKU,
			Body: fmt.Sprintf("%s has %d units left (reorder point %d, status %s).",
				product.Name, product.Stock, product.ReorderPoint, product.StockStatus()),
		})
		if err != nil {
			n.logger.ErrorContext(ctx, "failed to send low stock alert", "error", err, "product_id", product.ID)
		}
	}
}

func (n *ReceiptNotifier) fetchProduct(ctx context.Context, productID string) (*domain.Product, error) {
	url := fmt.Sprintf("%s/products/%s", n.inventoryServiceURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inventory service returned status %d", resp.StatusCode)
	}

	var product domain.Product
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}

	return &product, nil
}

func (n *ReceiptNotifier) send(ctx context.Context, msg notify.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.notifyServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return backoff.Permanent(fmt.Errorf("%w: notify service returned status %d", errUndeliverable, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify service returned status %d", resp.StatusCode)
	}

	return nil
}
