package procloader

import (
	"errors"
	"net/rpc"

	"github.com/hashicorp/go-plugin"

	"subgate.dev/cli/internal/core/domain"
	"subgate.dev/cli/internal/core/ports"
)

// Handshake keeps the host from launching arbitrary executables as
// plugins and plugins from running standalone.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "SUBGATE_PLUGIN",
	MagicCookieValue: "subgate_submit_filter",
}

// DispenseName is the key plugin binaries serve their filter under.
const DispenseName = "submit_filter"

// PluginMap is shared by the host and every plugin binary.
var PluginMap = map[string]plugin.Plugin{
	DispenseName: &FilterPlugin{},
}

// ModuleInfo is the self-description a running plugin reports. Type
// must agree with the sidecar manifest the rack vetted.
type ModuleInfo struct {
	Type    string
	Name    string
	Version string
}

// Module is the contract a plugin binary implements: the submit
// filter operations plus self-identification.
type Module interface {
	ports.SubmitFilter
	Info() (ModuleInfo, error)
}

// FilterPlugin adapts a Module to go-plugin's net/rpc transport.
type FilterPlugin struct {
	Impl Module
}

func (p *FilterPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &filterServer{impl: p.Impl}, nil
}

func (p *FilterPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &filterClient{client: c}, nil
}

// Wire types. Options travel by value and come back mutated; copying
// across the process boundary is what lets PreSubmit rewrite them.

type InfoReply struct {
	Info ModuleInfo
}

type PreSubmitArgs struct {
	Kind domain.CliKind
	Opts domain.JobOptions
}

type PostSubmitArgs struct {
	Kind  domain.CliKind
	JobID uint32
	Opts  domain.JobOptions
}

type FilterReply struct {
	Opts   domain.JobOptions
	ErrMsg string
}

// filterClient is the host-side proxy. It implements Module.
type filterClient struct {
	client *rpc.Client
}

func (c *filterClient) Info() (ModuleInfo, error) {
	var reply InfoReply
	if err := c.client.Call("Plugin.Info", new(struct{}), &reply); err != nil {
		return ModuleInfo{}, err
	}
	return reply.Info, nil
}

func (c *filterClient) PreSubmit(kind domain.CliKind, opts *domain.JobOptions) error {
	args := &PreSubmitArgs{Kind: kind, Opts: *opts}
	var reply FilterReply
	if err := c.client.Call("Plugin.PreSubmit", args, &reply); err != nil {
		return err
	}
	if reply.ErrMsg != "" {
		return errors.New(reply.ErrMsg)
	}
	*opts = reply.Opts
	return nil
}

func (c *filterClient) PostSubmit(kind domain.CliKind, jobID uint32, opts *domain.JobOptions) error {
	args := &PostSubmitArgs{Kind: kind, JobID: jobID, Opts: *opts}
	var reply FilterReply
	if err := c.client.Call("Plugin.PostSubmit", args, &reply); err != nil {
		return err
	}
	if reply.ErrMsg != "" {
		return errors.New(reply.ErrMsg)
	}
	return nil
}

// filterServer is the plugin-side shim around the real implementation.
type filterServer struct {
	impl Module
}

func (s *filterServer) Info(_ *struct{}, reply *InfoReply) error {
	info, err := s.impl.Info()
	if err != nil {
		return err
	}
	reply.Info = info
	return nil
}

func (s *filterServer) PreSubmit(args *PreSubmitArgs, reply *FilterReply) error {
	opts := args.Opts
	if err := s.impl.PreSubmit(args.Kind, &opts); err != nil {
		reply.Opts = args.Opts
		reply.ErrMsg = err.Error()
		return nil
	}
	reply.Opts = opts
	return nil
}

func (s *filterServer) PostSubmit(args *PostSubmitArgs, reply *FilterReply) error {
	opts := args.Opts
	if err := s.impl.PostSubmit(args.Kind, args.JobID, &opts); err != nil {
		reply.ErrMsg = err.Error()
	}
	reply.Opts = opts
	return nil
}

// Serve is the main entry point for plugin binaries.
func Serve(impl Module) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			DispenseName: &FilterPlugin{Impl: impl},
		},
	})
}
