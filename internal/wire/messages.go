package wire

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rishav/order-book/internal/orders"
)

// Message type tags. Requests and responses are tagged unions: the Type
// field selects which body pointer is populated.
const (
	TypePlaceOrder  = "PlaceOrder"
	TypeCancelOrder = "CancelOrder"
	TypeViewL2Book  = "ViewL2Book"

	TypePlaceOk   = "PlaceOk"
	TypePlaceErr  = "PlaceErr"
	TypeCancelOk  = "CancelOk"
	TypeCancelErr = "CancelErr"
	TypeL2BookOk  = "L2BookOk"
)

// PlaceOrderArgs carries a place request. Side is "Bid" or "Ask".
type PlaceOrderArgs struct {
	Side     string `msgpack:"side" json:"side"`
	Price    uint32 `msgpack:"price" json:"price"`
	Quantity uint32 `msgpack:"quantity" json:"quantity"`
}

// CancelOrderArgs carries a cancel request. OrderID is the canonical
// hyphenated form.
type CancelOrderArgs struct {
	OrderID string `msgpack:"order_id" json:"order_id"`
}

// Request is the client→server tagged union.
type Request struct {
	Type        string           `msgpack:"type" json:"type"`
	PlaceOrder  *PlaceOrderArgs  `msgpack:"place_order,omitempty" json:"place_order,omitempty"`
	CancelOrder *CancelOrderArgs `msgpack:"cancel_order,omitempty" json:"cancel_order,omitempty"`
}

// PlaceOkBody carries the minted order id.
type PlaceOkBody struct {
	OrderID string `msgpack:"order_id" json:"order_id"`
}

// L2Entry is one aggregated price level on the wire.
type L2Entry struct {
	Price         uint32 `msgpack:"price" json:"price"`
	TotalQuantity uint32 `msgpack:"total_quantity" json:"total_quantity"`
	NumOrders     int    `msgpack:"num_orders" json:"num_orders"`
}

// L2BookBody carries the aggregated book, bids best-first descending and
// asks best-first ascending.
type L2BookBody struct {
	Bids []L2Entry `msgpack:"bids" json:"bids"`
	Asks []L2Entry `msgpack:"asks" json:"asks"`
}

// Response is the server→client tagged union.
type Response struct {
	Type    string       `msgpack:"type" json:"type"`
	PlaceOk *PlaceOkBody `msgpack:"place_ok,omitempty" json:"place_ok,omitempty"`
	L2Book  *L2BookBody  `msgpack:"l2_book,omitempty" json:"l2_book,omitempty"`
}

// EncodeRequest emits the compact binary form.
func EncodeRequest(req Request) ([]byte, error) {
	return msgpack.Marshal(req)
}

// DecodeRequest tries the binary decode first and falls back to the
// textual form.
func DecodeRequest(payload []byte) (Request, error) {
	var req Request
	if err := msgpack.Unmarshal(payload, &req); err == nil && req.Type != "" {
		return req, nil
	}
	req = Request{}
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("undecodable request: %w", err)
	}
	if req.Type == "" {
		return Request{}, fmt.Errorf("request missing type tag")
	}
	return req, nil
}

// EncodeResponse emits the compact binary form.
func EncodeResponse(resp Response) ([]byte, error) {
	return msgpack.Marshal(resp)
}

// DecodeResponse tries the binary decode first and falls back to the
// textual form.
func DecodeResponse(payload []byte) (Response, error) {
	var resp Response
	if err := msgpack.Unmarshal(payload, &resp); err == nil && resp.Type != "" {
		return resp, nil
	}
	resp = Response{}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Response{}, fmt.Errorf("undecodable response: %w", err)
	}
	if resp.Type == "" {
		return Response{}, fmt.Errorf("response missing type tag")
	}
	return resp, nil
}

// ParseSide maps the wire side tag onto the domain side.
func ParseSide(s string) (orders.Side, error) {
	switch s {
	case orders.SideBid.String():
		return orders.SideBid, nil
	case orders.SideAsk.String():
		return orders.SideAsk, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

// L2BookFromSnapshot converts the domain snapshot to its wire form.
func L2BookFromSnapshot(book orders.L2Book) *L2BookBody {
	body := &L2BookBody{
		Bids: make([]L2Entry, len(book.Bids)),
		Asks: make([]L2Entry, len(book.Asks)),
	}
	for i, e := range book.Bids {
		body.Bids[i] = L2Entry{Price: e.Price, TotalQuantity: e.TotalQuantity, NumOrders: e.NumOrders}
	}
	for i, e := range book.Asks {
		body.Asks[i] = L2Entry{Price: e.Price, TotalQuantity: e.TotalQuantity, NumOrders: e.NumOrders}
	}
	return body
}
