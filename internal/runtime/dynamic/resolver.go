// Package dynamic resolves protobuf message types at runtime from the
// descriptor sets producers advertise.
//
// Every resolution builds its own descriptor pool, so two producers that use
// the same message name with different schemas never share a type. Resolved
// types are cached per full descriptor, name and bytes included.
package dynamic

import (
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/drblury/protomeas/internal/runtime/config"
	"github.com/drblury/protomeas/internal/runtime/datatype"
	errspkg "github.com/drblury/protomeas/internal/runtime/errors"
	"github.com/drblury/protomeas/internal/runtime/logging"
	"github.com/drblury/protomeas/internal/runtime/metrics"
)

// DefaultCacheSize bounds the number of resolved types a Resolver keeps.
const DefaultCacheSize = 128

// Resolver turns advertised descriptors into message types. It is safe for
// concurrent use.
type Resolver struct {
	size    int
	cache   *lru.Cache[datatype.Key, protoreflect.MessageType]
	group   singleflight.Group
	log     logging.ServiceLogger
	metrics *metrics.Dynamic
}

// Option configures a Resolver.
type Option func(*resolverOptions)

type resolverOptions struct {
	size    int
	log     logging.ServiceLogger
	metrics *metrics.Dynamic
}

// WithCacheSize overrides DefaultCacheSize. Values below one are ignored.
func WithCacheSize(size int) Option {
	return func(o *resolverOptions) {
		if size > 0 {
			o.size = size
		}
	}
}

// WithConfig applies the dynamic cache size of conf. A nil conf is ignored.
func WithConfig(conf *config.Config) Option {
	return func(o *resolverOptions) {
		if conf != nil {
			WithCacheSize(conf.CacheSize())(o)
		}
	}
}

func WithLogger(log logging.ServiceLogger) Option {
	return func(o *resolverOptions) { o.log = log }
}

func WithMetrics(m *metrics.Dynamic) Option {
	return func(o *resolverOptions) { o.metrics = m }
}

// New creates a Resolver with its own cache.
func New(opts ...Option) *Resolver {
	cfg := resolverOptions{size: DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Resolver{
		size:    cfg.size,
		log:     logging.Component(cfg.log, "dynamic-resolver"),
		metrics: cfg.metrics,
	}
	cache, err := lru.NewWithEvict(cfg.size, func(datatype.Key, protoreflect.MessageType) {
		r.metrics.RecordEviction()
	})
	if err != nil {
		// Only reachable with a non-positive size, which the option rejects.
		panic(err)
	}
	r.cache = cache
	return r
}

// Cap returns the number of types the cache holds before evicting.
func (r *Resolver) Cap() int { return r.size }

// Resolve returns the message type advertised by dt.
func (r *Resolver) Resolve(dt datatype.Descriptor) (protoreflect.MessageType, error) {
	key := dt.Key()
	if mt, ok := r.cache.Get(key); ok {
		r.metrics.RecordHit()
		return mt, nil
	}

	v, err, _ := r.group.Do(flightKey(key), func() (any, error) {
		if mt, ok := r.cache.Get(key); ok {
			return mt, nil
		}
		r.metrics.RecordMiss()
		mt, err := Build(dt)
		if err != nil {
			r.metrics.RecordFailure()
			r.log.Debug("Cannot resolve advertised type", logging.LogFields{
				"type":  dt.Name,
				"error": err.Error(),
			})
			return nil, err
		}
		r.cache.Add(key, mt)
		return mt, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(protoreflect.MessageType), nil
}

// Len reports how many types are cached.
func (r *Resolver) Len() int {
	return r.cache.Len()
}

// Build resolves dt without caching, against a descriptor pool created for
// this call only.
func Build(dt datatype.Descriptor) (protoreflect.MessageType, error) {
	if dt.Encoding != datatype.EncodingProto {
		return nil, &errspkg.UnsupportedDatatypeError{
			TypeName: dt.Name,
			Reason:   fmt.Sprintf("encoding %q is not %q", dt.Encoding, datatype.EncodingProto),
		}
	}
	if dt.Name == "" {
		return nil, &errspkg.UnsupportedDatatypeError{Reason: "type name is empty"}
	}
	if len(dt.Descriptor) == 0 {
		return nil, &errspkg.UnsupportedDatatypeError{TypeName: dt.Name, Reason: "descriptor set is empty"}
	}

	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(dt.Descriptor, &set); err != nil {
		return nil, &errspkg.UnsupportedDatatypeError{TypeName: dt.Name, Reason: "malformed descriptor set", Err: err}
	}

	files, err := protodesc.NewFiles(&set)
	if err != nil {
		return nil, &errspkg.UnsupportedDatatypeError{TypeName: dt.Name, Reason: "invalid descriptor set", Err: err}
	}

	desc, err := files.FindDescriptorByName(protoreflect.FullName(dt.Name))
	if err != nil {
		return nil, &errspkg.UnsupportedDatatypeError{TypeName: dt.Name, Reason: "type not declared in descriptor set", Err: err}
	}
	md, ok := desc.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, &errspkg.UnsupportedDatatypeError{TypeName: dt.Name, Reason: "declared symbol is not a message"}
	}
	return dynamicpb.NewMessageType(md), nil
}

func flightKey(k datatype.Key) string {
	// Length prefixes keep distinct keys from concatenating to the same string.
	return strconv.Itoa(len(k.Name)) + ":" + k.Name +
		strconv.Itoa(len(k.Encoding)) + ":" + k.Encoding +
		k.Descriptor
}
