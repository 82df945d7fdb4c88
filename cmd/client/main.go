// Command client is the CLI for the order book server. Each subcommand
// opens a fresh connection, sends one request, prints the response, and
// exits.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rishav/order-book/internal/orders"
	"github.com/rishav/order-book/internal/wire"
)

var serverAddr string

func main() {
	root := &cobra.Command{
		Use:           "client",
		Short:         "Order book client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverAddr, "server", "127.0.0.1:8080", "server address")

	root.AddCommand(placeOrderCmd(), cancelOrderCmd(), viewL2BookCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func placeOrderCmd() *cobra.Command {
	var isBid bool
	cmd := &cobra.Command{
		Use:   "place-order PRICE QUANTITY",
		Short: "Place a limit order (ask by default, --is-bid for a bid)",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			price, err := parseU32(args[0])
			if err != nil {
				return fmt.Errorf("bad price: %w", err)
			}
			quantity, err := parseU32(args[1])
			if err != nil {
				return fmt.Errorf("bad quantity: %w", err)
			}
			side := orders.SideAsk
			if isBid {
				side = orders.SideBid
			}

			resp, err := roundTrip(wire.Request{
				Type: wire.TypePlaceOrder,
				PlaceOrder: &wire.PlaceOrderArgs{
					Side:     side.String(),
					Price:    price,
					Quantity: quantity,
				},
			})
			if err != nil {
				return err
			}
			switch resp.Type {
			case wire.TypePlaceOk:
				fmt.Printf("PlaceOk: %s\n", resp.PlaceOk.OrderID)
			case wire.TypePlaceErr:
				fmt.Println("PlaceErr")
			default:
				return fmt.Errorf("unexpected response %q", resp.Type)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&isBid, "is-bid", false, "place a bid instead of an ask")
	return cmd
}

func cancelOrderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-order ORDER_ID",
		Short: "Cancel a resting order",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("bad order id: %w", err)
			}

			resp, err := roundTrip(wire.Request{
				Type:        wire.TypeCancelOrder,
				CancelOrder: &wire.CancelOrderArgs{OrderID: id.String()},
			})
			if err != nil {
				return err
			}
			switch resp.Type {
			case wire.TypeCancelOk:
				fmt.Println("CancelOk")
			case wire.TypeCancelErr:
				fmt.Println("CancelErr")
			default:
				return fmt.Errorf("unexpected response %q", resp.Type)
			}
			return nil
		},
	}
}

func viewL2BookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view-l2-book",
		Short: "Show the aggregated book",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := roundTrip(wire.Request{Type: wire.TypeViewL2Book})
			if err != nil {
				return err
			}
			if resp.Type != wire.TypeL2BookOk || resp.L2Book == nil {
				return fmt.Errorf("unexpected response %q", resp.Type)
			}
			printL2Book(resp.L2Book)
			return nil
		},
	}
}

// printL2Book prints asks top-down and bids below, so the spread sits in
// the middle of the output.
func printL2Book(book *wire.L2BookBody) {
	fmt.Println("ASKS:")
	if len(book.Asks) == 0 {
		fmt.Println("  (empty)")
	}
	for i := len(book.Asks) - 1; i >= 0; i-- {
		e := book.Asks[i]
		fmt.Printf("  %d: %d (%d orders)\n", e.Price, e.TotalQuantity, e.NumOrders)
	}
	fmt.Println("BIDS:")
	if len(book.Bids) == 0 {
		fmt.Println("  (empty)")
	}
	for _, e := range book.Bids {
		fmt.Printf("  %d: %d (%d orders)\n", e.Price, e.TotalQuantity, e.NumOrders)
	}
}

// roundTrip opens a connection, sends one request, and reads one
// response.
func roundTrip(req wire.Request) (wire.Response, error) {
	conn, err := net.Dial("tcp", serverAddr)
	if err != nil {
		return wire.Response{}, fmt.Errorf("connect to %s: %w", serverAddr, err)
	}
	defer conn.Close()

	payload, err := wire.EncodeRequest(req)
	if err != nil {
		return wire.Response{}, err
	}
	if err := wire.WriteFrame(conn, payload); err != nil {
		return wire.Response{}, err
	}
	respPayload, err := wire.ReadFrame(conn)
	if err != nil {
		return wire.Response{}, fmt.Errorf("read response: %w", err)
	}
	return wire.DecodeResponse(respPayload)
}

func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
