// Package config provides configuration management for the Stratus dataset
// engine.
//
// # Key Features
//
//   - EngineConfig: engine-wide execution and observability settings with
//     defaults derived from the host (logical CPU count)
//   - PipelineSpec: YAML description of an operator tree, one NodeSpec per
//     operator with its loader, sampler, options and children
//   - Environment overrides for engine settings (STRATUS_ prefix, via viper)
//   - ${VAR} and ${VAR:-default} substitution in pipeline files
//
// # Usage
//
//	cfg, err := config.LoadEngine("engine.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	spec, err := config.LoadPipeline("pipeline.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Pipeline files
//
//	name: mnist-train
//	root:
//	  op: batch
//	  options: {batch_size: 32}
//	  children:
//	    - op: shuffle
//	      options: {buffer_size: 1024}
//	      children:
//	        - op: source
//	          loader:
//	            type: jsonl
//	            options: {uri: "${DATA_ROOT:-/data}/train.jsonl.gz"}
package config
