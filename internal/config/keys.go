// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package config

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

type field struct {
	get func(*Config) string
	set func(*Config, string) error
}

func strField(p func(*Config) *string) field {
	return field{
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func durField(p func(*Config) *time.Duration) field {
	return field{
		get: func(c *Config) string { return p(c).String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*p(c) = d
			return nil
		},
	}
}

func boolField(p func(*Config) *bool) field {
	return field{
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*p(c) = b
			return nil
		},
	}
}

var fields = map[string]field{
	"log_level":                          strField(func(c *Config) *string { return &c.LogLevel }),
	"databricks.host":                    strField(func(c *Config) *string { return &c.Databricks.Host }),
	"databricks.space_id":                strField(func(c *Config) *string { return &c.Databricks.SpaceID }),
	"databricks.warehouse_id":            strField(func(c *Config) *string { return &c.Databricks.WarehouseID }),
	"databricks.serving_endpoint":        strField(func(c *Config) *string { return &c.Databricks.ServingEndpoint }),
	"genie.poll_interval":                durField(func(c *Config) *time.Duration { return &c.Genie.PollInterval }),
	"genie.wait_budget":                  durField(func(c *Config) *time.Duration { return &c.Genie.WaitBudget }),
	"genie.request_timeout":              durField(func(c *Config) *time.Duration { return &c.Genie.RequestTimeout }),
	"warehouse.wait_budget":              durField(func(c *Config) *time.Duration { return &c.Warehouse.WaitBudget }),
	"agent.llm":                          strField(func(c *Config) *string { return &c.Agent.LLM }),
	"agent.max_wait":                     durField(func(c *Config) *time.Duration { return &c.Agent.MaxWait }),
	"agent.force_final_after_first_tool": boolField(func(c *Config) *bool { return &c.Agent.ForceFinal }),
	"agent.anthropic_model":              strField(func(c *Config) *string { return &c.Agent.AnthropicModel }),
	"enhance":                            boolField(func(c *Config) *bool { return &c.Enhance }),
	"bridge.listen":                      strField(func(c *Config) *string { return &c.Bridge.Listen }),
	"bridge.addr":                        strField(func(c *Config) *string { return &c.Bridge.Addr }),
	"agent.max_steps": {
		get: func(c *Config) string { return strconv.Itoa(c.Agent.MaxSteps) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			c.Agent.MaxSteps = n
			return nil
		},
	},
}

// Keys lists the settable keys in order.
func Keys() []string {
	out := make([]string, 0, len(fields))
	for k := range fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Get returns the value of key as text.
func (c *Config) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	return f.get(c), nil
}

// Set parses value into key and revalidates.
func (c *Config) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	next := *c
	if err := f.set(&next, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
