package book

import (
	"net"
	"net/http"
	"net/rpc"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/helinwang/log15"

	"github.com/SarahWill6/StockRWA/pkg/seal"
)

// RPCServer exposes the engine's operations and queries over net/rpc.
type RPCServer struct {
	engine *Engine
}

func NewRPCServer(engine *Engine) *RPCServer {
	return &RPCServer{engine: engine}
}

func (r *RPCServer) Start(addr string) error {
	s := &BookService{engine: r.engine}

	err := rpc.Register(s)
	if err != nil {
		return err
	}

	rpc.HandleHTTP()
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		err := http.Serve(l, nil)
		if err != nil {
			log.Error("error serving RPC server", "err", err)
		}
	}()
	return nil
}

type CreateOrderArg struct {
	Seller       common.Address
	Asset        AssetSymbol
	Ciphertext   []byte
	Proof        []byte
	PricePerUnit uint64
}

type FillOrderArg struct {
	Buyer      common.Address
	ID         OrderID
	Ciphertext []byte
	Proof      []byte
	Payment    uint64
}

type CancelOrderArg struct {
	Caller common.Address
	ID     OrderID
}

type WithdrawArg struct {
	Addr  common.Address
	Quant uint64
}

// OrderView is the public projection of an order. The remaining quantity
// has no clear representation, so it is simply absent.
type OrderView struct {
	ID           OrderID
	Seller       common.Address
	Asset        AssetSymbol
	PricePerUnit uint64
	Active       bool
	CreatedAt    uint64
	Expired      bool
}

// BookService is the RPC service for the order book.
type BookService struct {
	engine *Engine
}

func (s *BookService) CreateOrder(arg CreateOrderArg, id *OrderID) error {
	created, err := s.engine.CreateSellOrder(arg.Seller, arg.Asset, seal.Ciphertext(arg.Ciphertext), seal.Proof(arg.Proof), arg.PricePerUnit)
	if err != nil {
		return err
	}
	*id = created
	return nil
}

func (s *BookService) FillOrder(arg FillOrderArg, _ *int) error {
	return s.engine.FillOrder(arg.Buyer, arg.ID, seal.Ciphertext(arg.Ciphertext), seal.Proof(arg.Proof), arg.Payment)
}

func (s *BookService) CancelOrder(arg CancelOrderArg, _ *int) error {
	return s.engine.CancelOrder(arg.Caller, arg.ID)
}

func (s *BookService) Order(id OrderID, view *OrderView) error {
	o, err := s.engine.Order(id)
	if err != nil {
		return err
	}

	expired, err := s.engine.IsExpired(id)
	if err != nil {
		return err
	}

	*view = OrderView{
		ID:           o.ID,
		Seller:       o.Seller,
		Asset:        o.Asset,
		PricePerUnit: o.PricePerUnit,
		Active:       o.Active,
		CreatedAt:    o.CreatedAt,
		Expired:      expired,
	}
	return nil
}

func (s *BookService) SellerOrders(seller common.Address, ids *[]OrderID) error {
	*ids = s.engine.SellerOrders(seller)
	return nil
}

func (s *BookService) Funds(addr common.Address, funds *uint64) error {
	*funds = s.engine.Funds(addr)
	return nil
}

func (s *BookService) Withdraw(arg WithdrawArg, _ *int) error {
	return s.engine.Withdraw(arg.Addr, arg.Quant)
}
