// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package redis

// Option defines a common functional options type
type Option func(interface{})

// options is the set of available options for a Store
type options struct {
	withPrefix        string
	withScanBatchSize int64
}

func defaults() options {
	return options{
		withScanBatchSize: 1000,
	}
}

func getOpts(opt ...Option) options {
	opts := defaults()
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// WithPrefix namespaces every key written by the Store.
func WithPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withPrefix = prefix
		}
	}
}

// WithScanBatchSize sets the COUNT hint used when listing keys.
func WithScanBatchSize(n int64) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && n > 0 {
			o.withScanBatchSize = n
		}
	}
}
