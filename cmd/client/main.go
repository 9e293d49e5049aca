package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "matchbook/api/pb"
	"matchbook/domain/price"
)

const usage = `usage: client [-addr host:port] [-timeout d] <command>

commands:
  submit <client_id> <symbol> <BUY|SELL> <LIMIT|MARKET> <price> <scale> <qty>
         scale "-" reads price as a decimal string, e.g. 100.50
  cancel <symbol> <order_id>
  book   <symbol> [depth]
`

func main() {
	addr := flag.String("addr", "localhost:50051", "engine gRPC address")
	timeout := flag.Duration("timeout", 5*time.Second, "per call timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := dispatch(ctx, pb.NewMatchingEngineClient(conn), flag.Args())
	if errors.Is(err, errUsage) {
		fmt.Fprintf(os.Stderr, "%v\n\n%s", err, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

var errUsage = errors.New("bad arguments")

func dispatch(ctx context.Context, c pb.MatchingEngineClient, args []string) (any, error) {
	switch cmd, rest := args[0], args[1:]; cmd {
	case "submit":
		req, err := parseSubmit(rest)
		if err != nil {
			return nil, err
		}
		return c.SubmitOrder(ctx, req)

	case "cancel":
		if len(rest) != 2 {
			return nil, fmt.Errorf("%w: cancel takes <symbol> <order_id>", errUsage)
		}
		return c.CancelOrder(ctx, &pb.CancelRequest{Symbol: rest[0], OrderId: rest[1]})

	case "book":
		if len(rest) < 1 || len(rest) > 2 {
			return nil, fmt.Errorf("%w: book takes <symbol> [depth]", errUsage)
		}
		req := &pb.OrderBookRequest{Symbol: rest[0]}
		if len(rest) == 2 {
			d, err := strconv.ParseInt(rest[1], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: depth: %v", errUsage, err)
			}
			req.Depth = int32(d)
		}
		return c.GetOrderBook(ctx, req)

	default:
		return nil, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func parseSubmit(args []string) (*pb.OrderRequest, error) {
	if len(args) != 7 {
		return nil, fmt.Errorf("%w: submit takes 7 arguments, got %d", errUsage, len(args))
	}

	req := &pb.OrderRequest{
		ClientId:  args[0],
		Symbol:    args[1],
		Side:      pb.Side(strings.ToUpper(args[2])),
		OrderType: pb.OrderType(strings.ToUpper(args[3])),
	}

	if args[5] == "-" {
		raw, scale, err := price.Parse(args[4])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errUsage, err)
		}
		req.Price, req.Scale = raw, int32(scale)
	} else {
		raw, err := strconv.ParseInt(args[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: price: %v", errUsage, err)
		}
		scale, err := strconv.ParseInt(args[5], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: scale: %v", errUsage, err)
		}
		req.Price, req.Scale = raw, int32(scale)
	}

	qty, err := strconv.ParseInt(args[6], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: quantity: %v", errUsage, err)
	}
	req.Quantity = qty
	return req, nil
}
