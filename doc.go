// Package stratus is a dataflow execution engine. A pipeline is a tree of
// operators: leaves load and sample tables, inner operators transform the
// rows they pull from their children, and a consumer iterates the root.
//
// # Architecture
//
// Operators exchange DataBuffers through bounded Connectors. Each operator
// owns the connector it writes to and runs one worker goroutine (pipeline
// operators) or several sharing the same connectors (parallel operators).
// End-of-epoch buffers delimit passes over the data; an end-of-data buffer
// from every producer closes a connector's stream.
//
// Before execution the tree is prepared in two passes. The pre-order pass
// lets each operator read values published by its ancestors, such as the
// epoch count of a repeat or the rows per buffer of the engine. The
// post-order pass validates each operator against its prepared children and
// creates the connectors. Preparation stops at the first failure.
//
// # Quick Start
//
// Describe a pipeline in YAML:
//
//	name: train
//	root:
//	  op: batch
//	  options: {batch_size: 32}
//	  children:
//	    - op: shuffle
//	      options: {buffer_size: 1024}
//	      children:
//	        - op: source
//	          loader: {type: jsonl, options: {path: "s3://bucket/train.jsonl.zst"}}
//
// and run it:
//
//	stratus run --pipeline train.yaml --output batches.jsonl
//
// or from Go:
//
//	tree, err := builder.New(cfg, logger.Get()).BuildFile("train.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := tree.Prepare(ctx); err != nil {
//	    return err
//	}
//	if err := tree.Launch(ctx); err != nil {
//	    return err
//	}
//	it, _ := tree.Iterator()
//	for {
//	    buf, err := it.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//
// # Key Packages
//
//	internal/engine  - Execution tree, connectors, preparation and workers
//	internal/ops     - Built-in operators (source, map, batch, shuffle, ...)
//	internal/loader  - Table loaders for files, object stores, databases and Kafka
//	internal/builder - Pipeline spec to execution tree
//	pkg/sampler      - Index samplers driving sources
//	pkg/config       - Engine configuration and pipeline specs
//	pkg/errors       - Structured error handling
//	pkg/logger       - Structured logging
//	pkg/metrics      - Prometheus metrics
//	pkg/observability - OpenTelemetry tracing of preparation
package stratus
