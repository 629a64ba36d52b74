package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/joao-fontenele/posflow/internal/checkout"
	"github.com/joao-fontenele/posflow/internal/client"
	"github.com/joao-fontenele/posflow/internal/domain"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		gatewayURL  string
		retryBudget time.Duration
	)

	root := &cobra.Command{
		Use:           "posctl",
		Short:         "Point-of-sale command line for the posflow gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv("POSFLOW_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&gatewayURL, "url", defaultURL, "gateway base URL")
	root.PersistentFlags().DurationVar(&retryBudget, "retry", 5*time.Second, "how long to retry when the store is busy, 0 disables")

	newClient := func() *client.Client {
		return client.New(strings.TrimRight(gatewayURL, "/"), client.WithRetryBudget(retryBudget))
	}

	root.AddCommand(
		newPlaceCmd(newClient),
		newCancelCmd(newClient),
		newGetCmd(newClient),
		newListCmd(newClient),
		newCreditCmd(newClient),
		newProductsCmd(newClient),
	)
	return root
}

func newPlaceCmd(newClient func() *client.Client) *cobra.Command {
	var (
		customerID string
		method     string
		taxRate    string
		notes      string
	)

	cmd := &cobra.Command{
		Use:     "place PRODUCT_ID=QTY...",
		Short:   "Place an order and print the receipt",
		Example: "  posctl place --customer 3f9e8b1a-0002-4c5d-8e7f-000000000002 --method credit 7d1c2a3e-0001-4a6b-9c1d-000000000001=2",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseLines(args)
			if err != nil {
				return err
			}

			in := client.PlaceOrderInput{
				CustomerID:    customerID,
				PaymentMethod: domain.PaymentMethod(method),
				Notes:         notes,
				Items:         items,
			}
			if taxRate != "" {
				rate, err := decimal.NewFromString(taxRate)
				if err != nil {
					return fmt.Errorf("invalid --tax-rate: %w", err)
				}
				in.TaxRate = &rate
			}

			receipt, err := newClient().PlaceOrder(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd, receipt)
		},
	}

	cmd.Flags().StringVar(&customerID, "customer", "", "customer id")
	cmd.Flags().StringVar(&method, "method", string(domain.PaymentMethodCash), "payment method")
	cmd.Flags().StringVar(&taxRate, "tax-rate", "", "tax rate override, e.g. 0.18")
	cmd.Flags().StringVar(&notes, "notes", "", "free-text notes")
	_ = cmd.MarkFlagRequired("customer")

	return cmd
}

func newCancelCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel INVOICE_ID",
		Short: "Cancel an invoice and return its stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().CancelOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func newGetCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get INVOICE_ID",
		Short: "Show one invoice with its lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoice, err := newClient().GetInvoice(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, invoice)
		},
	}
}

func newListCmd(newClient func() *client.Client) *cobra.Command {
	var filter domain.InvoiceFilter
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent invoices, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter.Status = domain.InvoiceStatus(status)
			invoices, err := newClient().ListInvoices(cmd.Context(), filter)
			if err != nil {
				return err
			}
			for _, inv := range invoices {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%-9s\t%s\t%s\n",
					inv.Number, inv.CreatedAt.Format(time.RFC3339), inv.Status, inv.Total.StringFixed(2), inv.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "pending, paid or cancelled")
	cmd.Flags().StringVar(&filter.CustomerID, "customer", "", "only this customer's invoices")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum rows, up to 100")

	return cmd
}

func newCreditCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "credit CUSTOMER_ID",
		Short: "Show a customer's credit position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			credit, err := newClient().CustomerCredit(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, credit)
		},
	}
}

func newProductsCmd(newClient func() *client.Client) *cobra.Command {
	var lowStock bool

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List the catalog with stock levels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			products, err := newClient().ListProducts(cmd.Context(), lowStock)
			if err != nil {
				return err
			}
			for _, p := range products {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s\t%-24s\t%5d\t%-8s\t%s\n",
					p.SKU, p.Name, p.Stock, p.StockStatus(), p.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&lowStock, "low-stock", false, "only products at or below their reorder point")

	return cmd
}

// parseLines turns PRODUCT_ID=QTY arguments into order lines.
func parseLines(args []string) ([]checkout.LineRequest, error) {
	items := make([]checkout.LineRequest, 0, len(args))
	for _, arg := range args {
		id, qty, ok := strings.Cut(arg, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("line %q must look like PRODUCT_ID=QTY", arg)
		}
		n, err := strconv.Atoi(qty)
		if err != nil {
			return nil, fmt.Errorf("line %q: quantity must be an integer", arg)
		}
		items = append(items, checkout.LineRequest{ProductID: id, Quantity: n})
	}
	return items, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
