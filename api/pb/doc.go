// Package pb holds the wire types and service descriptor of
// matching_engine.v1.MatchingEngine.
//
// Messages are plain Go structs carried by the "json" codec registered in
// codec.go; clients built with NewMatchingEngineClient select it
// automatically. Protobuf messages sent over the same codec (the health
// service) are encoded with protojson.
package pb
