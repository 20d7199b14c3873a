// orderctl is the customer-terminal client: it hosts the push client and the
// sync engine for one outlet. Run exactly one orderctl per outlet; the local
// state file is keyed by outlet and two writers would race on it.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-menu-orders.git/internal/config"
	"github.com/ariefcatur/go-menu-orders.git/internal/orders"
	"github.com/ariefcatur/go-menu-orders.git/internal/pushc"
	"github.com/ariefcatur/go-menu-orders.git/internal/syncx"
)

var (
	flagOutlet string
	flagAPI    string
	flagDB     string
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	root := &cobra.Command{
		Use:   "orderctl",
		Short: "Track and manage your order at a connected outlet",
	}
	root.PersistentFlags().StringVar(&flagOutlet, "outlet", "", "outlet id (24-char hex)")
	root.PersistentFlags().StringVar(&flagAPI, "api", cfg.APIBaseURL, "order API base URL")
	root.PersistentFlags().StringVar(&flagDB, "db", cfg.ClientDBPath, "local state file")
	_ = root.MarkPersistentFlagRequired("outlet")

	root.AddCommand(createCmd(), statusCmd(), watchCmd(), clearCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func createCmd() *cobra.Command {
	var (
		items    []string
		total    float64
		comments string
		name     string
		table    string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Place a new order",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseItems(items)
			if err != nil {
				return err
			}
			eng, closeAll, err := buildEngine(nil)
			if err != nil {
				return err
			}
			defer closeAll()

			o, err := eng.Create(cmd.Context(), orders.CreateInput{
				Items:        parsed,
				TotalAmount:  total,
				Comments:     comments,
				CustomerName: name,
				TableNumber:  table,
			})
			if err != nil {
				if eng.NetworkError() {
					fmt.Fprintln(os.Stderr, "connection lost, please retry")
				}
				return err
			}
			fmt.Printf("order placed: %s (total %.2f)\n", o.OrderID, o.TotalAmount)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&items, "item", nil, "item as id|name|qty|price|quantityId|description (repeatable)")
	cmd.Flags().Float64Var(&total, "total", 0, "order total")
	cmd.Flags().StringVar(&comments, "comments", "", "free-text comments")
	cmd.Flags().StringVar(&name, "name", "", "customer name")
	cmd.Flags().StringVar(&table, "table", "", "table number")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("total")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the tracked order and completed history",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeAll, err := buildEngine(nil)
			if err != nil {
				return err
			}
			defer closeAll()

			if err := eng.Refresh(cmd.Context()); err != nil {
				log.Printf("refresh: %v", err)
			}
			printState(eng)
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow live updates for the tracked order",
		RunE: func(cmd *cobra.Command, args []string) error {
			callbacks := syncx.Config{
				OnOrderUpdate: func(o orders.Order) {
					line := fmt.Sprintf("update: %s -> %s/%s", o.OrderID, o.OrderStatus, o.PaymentStatus)
					if o.ReadyToFinalize() {
						line += " (one step from done)"
					}
					fmt.Println(line)
				},
				OnOrderComplete: func(o orders.Order) {
					fmt.Printf("completed: %s, thanks for visiting\n", o.OrderID)
				},
			}
			eng, closeAll, err := buildEngine(&callbacks)
			if err != nil {
				return err
			}
			defer closeAll()

			printState(eng)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			eng.Run(ctx)
			return nil
		},
	}
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Stop tracking the active order (history is kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeAll, err := buildEngine(nil)
			if err != nil {
				return err
			}
			defer closeAll()
			eng.ClearActiveOrder()
			fmt.Println("active order cleared")
			return nil
		},
	}
}

func buildEngine(callbacks *syncx.Config) (*syncx.Engine, func(), error) {
	store, err := syncx.OpenStore(flagDB)
	if err != nil {
		return nil, nil, err
	}
	push := pushc.New(flagAPI, flagOutlet)
	cfg := syncx.Config{
		OutletID: flagOutlet,
		Store:    store,
		API:      syncx.NewAPIClient(flagAPI),
		Push:     push,
	}
	if callbacks != nil {
		cfg.OnOrderUpdate = callbacks.OnOrderUpdate
		cfg.OnOrderComplete = callbacks.OnOrderComplete
	}
	eng, err := syncx.New(cfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	closeAll := func() {
		eng.Close()
		_ = store.Close()
	}
	return eng, closeAll, nil
}

func printState(eng *syncx.Engine) {
	if o := eng.ActiveOrder(); o != nil {
		fmt.Printf("active: %s status=%s payment=%s total=%.2f\n",
			o.OrderID, o.OrderStatus, o.PaymentStatus, o.TotalAmount)
		for _, it := range o.Items {
			fmt.Printf("  %dx %s (%s) %.2f\n", it.Quantity, it.Name, it.QuantityDescription, it.Price)
		}
	} else {
		fmt.Println("no active order")
	}
	hist := eng.History()
	if len(hist) > 0 {
		fmt.Printf("history (%d):\n", len(hist))
		for _, h := range hist {
			fmt.Printf("  %s total=%.2f\n", h.OrderID, h.TotalAmount)
		}
	}
}

// parseItems decodes repeated --item flags: id|name|qty|price|quantityId|description.
func parseItems(raw []string) ([]orders.OrderItem, error) {
	out := make([]orders.OrderItem, 0, len(raw))
	for _, r := range raw {
		parts := strings.Split(r, "|")
		if len(parts) != 6 {
			return nil, fmt.Errorf("item %q: want id|name|qty|price|quantityId|description", r)
		}
		qty, err := strconv.Atoi(parts[2])
		if err != nil || qty < 1 {
			return nil, fmt.Errorf("item %q: bad quantity", r)
		}
		price, err := strconv.ParseFloat(parts[3], 64)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("item %q: bad price", r)
		}
		out = append(out, orders.OrderItem{
			ID:                  parts[0],
			Name:                parts[1],
			Quantity:            qty,
			Price:               price,
			QuantityID:          parts[4],
			QuantityDescription: parts[5],
		})
	}
	return out, nil
}
