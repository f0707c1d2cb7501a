package config

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	consulapi "github.com/hashicorp/consul/api"
	"gopkg.in/yaml.v3"
)

// ConsulLoader reads the inventory from Consul KV. The URI is
// consul://<agent-addr>/<prefix>; servers live under <prefix>/servers/<name>
// as YAML records, with optional <prefix>/defaults and <prefix>/settings
// documents. Query parameters: scheme (http/https), token, datacenter.
type ConsulLoader struct{}

// Load fetches and decodes the inventory.
func (ConsulLoader) Load(ctx context.Context, uri *url.URL) (*Config, error) {
	cli, prefix, err := newConsulClient(uri)
	if err != nil {
		return nil, err
	}
	kv := cli.KV()
	q := (&consulapi.QueryOptions{}).WithContext(ctx)

	cfg := DefaultConfig()

	if pair, _, err := kv.Get(path.Join(prefix, "defaults"), q); err != nil {
		return nil, consulFailed(uri, err)
	} else if pair != nil {
		if err := yaml.Unmarshal(pair.Value, &cfg.Defaults); err != nil {
			return nil, loadFailed(err,
				fmt.Sprintf("Bad YAML in consul key %s", pair.Key),
				"Fix the defaults document; it should look like {user: deploy, port: 22}")
		}
	}

	if pair, _, err := kv.Get(path.Join(prefix, "settings"), q); err != nil {
		return nil, consulFailed(uri, err)
	} else if pair != nil {
		raw := map[string]interface{}{}
		if err := yaml.Unmarshal(pair.Value, &raw); err != nil {
			return nil, loadFailed(err,
				fmt.Sprintf("Bad YAML in consul key %s", pair.Key),
				"Fix the settings document; it uses the same keys as the file 'settings' block")
		}
		cfg.settingsRaw = raw

		// Decode through the same default layering the file loader gets.
		v, err := settingsViper(cfg)
		if err != nil {
			return nil, err
		}
		if err := v.Unmarshal(&cfg.Settings); err != nil {
			return nil, loadFailed(err,
				fmt.Sprintf("Invalid settings in consul key %s", pair.Key),
				"Check the value types in the settings document")
		}
	}

	serversPrefix := path.Join(prefix, "servers") + "/"
	pairs, _, err := kv.List(serversPrefix, q)
	if err != nil {
		return nil, consulFailed(uri, err)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })

	for _, pair := range pairs {
		name := strings.TrimPrefix(pair.Key, serversPrefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue // folder marker
		}
		var s Server
		if len(pair.Value) > 0 {
			if err := yaml.Unmarshal(pair.Value, &s); err != nil {
				return nil, loadFailed(err,
					fmt.Sprintf("Bad YAML in consul key %s", pair.Key),
					"Each server record is a YAML map like {address: 10.0.0.1, roles: [web]}")
			}
		}
		if s.Name == "" {
			s.Name = name
		}
		cfg.Servers = append(cfg.Servers, s)
	}

	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newConsulClient(uri *url.URL) (*consulapi.Client, string, error) {
	conf := consulapi.DefaultConfig()
	if uri.Host != "" {
		conf.Address = uri.Host
	}
	q := uri.Query()
	if scheme := q.Get("scheme"); scheme != "" {
		conf.Scheme = scheme
	}
	if token := q.Get("token"); token != "" {
		conf.Token = token
	}
	if dc := q.Get("datacenter"); dc != "" {
		conf.Datacenter = dc
	}

	cli, err := consulapi.NewClient(conf)
	if err != nil {
		return nil, "", loadFailed(err,
			"Couldn't set up the Consul client",
			"Check the consul:// address and the CONSUL_* environment variables")
	}

	prefix := strings.Trim(uri.Path, "/")
	if prefix == "" {
		prefix = "herd"
	}
	return cli, prefix, nil
}

func consulFailed(uri *url.URL, err error) error {
	return loadFailed(err,
		fmt.Sprintf("Couldn't read the inventory from consul at %s", uri.Host),
		"Check the agent is reachable: consul members")
}
