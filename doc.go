// Package ygggo_graph provides a production-ready client runtime layer for
// embedded graph query engines in Go.
//
// # Overview
//
// ygggo_graph sits in front of an embedded engine handle and manages what
// the raw handle does not:
//   - Connection lifecycle with an explicit idle/busy/failed state machine
//   - Error classification into a stable operation/category taxonomy
//   - Recovery of connections from failure states
//   - A bounded connection pool with blocking or fail-fast acquisition
//   - Idle eviction and background health checking
//   - Transaction-scoped execution with guaranteed release
//   - Structured logging, metrics and tracing
//
// The engine itself is consumed through the Database/EngineConn interfaces
// and never reimplemented; any engine whose raw handles are single-caller
// can sit behind this layer.
//
// # Quick Start
//
//	import ggg "github.com/yggai/ygggo_graph"
//
//	pool, err := ggg.NewPool(ctx, db, ggg.Config{Pool: ggg.DefaultPoolConfig()})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	err = pool.WithConn(ctx, func(conn *ggg.Conn) error {
//		res, err := conn.Query(ctx, "MATCH (p:Person) RETURN p.name")
//		if err != nil {
//			return err
//		}
//		defer res.Close()
//		for res.Next() {
//			fmt.Println(res.Values())
//		}
//		return res.Err()
//	})
//
// # Transactions
//
// WithinTx commits on success and rolls back on failure, releasing the
// connection on every path:
//
//	err = pool.WithinTx(ctx, func(tx *ggg.Tx) error {
//		if err := tx.Exec(ctx, "CREATE (:Account {id: 1})"); err != nil {
//			return err
//		}
//		return tx.Exec(ctx, "CREATE (:Account {id: 2})")
//	})
//
// # Failure model
//
// Every operation failure is classified (operation tag plus coarse category)
// and recorded on the connection, retrievable via LastError even after the
// call returned. Transaction protocol violations move the connection to the
// failed state; Recover or the pool's health checks bring it back.
package ygggo_graph
