package model

// Deployment describes the environment a job deploys.
type Deployment struct {
	Release   string           `json:"release,omitempty"`
	InfraType string           `json:"infra_type,omitempty"`
	Topology  string           `json:"topology,omitempty"`
	Network   Network          `json:"network"`
	Storage   Storage          `json:"storage"`
	Nodes     map[string]*Node `json:"nodes,omitempty"`
}

type Network struct {
	IPVersion      string `json:"ip_version,omitempty"`
	NetworkBackend string `json:"network_backend,omitempty"`
	ML2Driver      string `json:"ml2_driver,omitempty"`
	DVR            string `json:"dvr,omitempty"`
}

type Storage struct {
	Backend string `json:"backend,omitempty"`
}

func (d *Deployment) Merge(o *Deployment) {
	mergeString(&d.Release, o.Release)
	mergeString(&d.InfraType, o.InfraType)
	mergeString(&d.Topology, o.Topology)
	mergeString(&d.Network.IPVersion, o.Network.IPVersion)
	mergeString(&d.Network.NetworkBackend, o.Network.NetworkBackend)
	mergeString(&d.Network.ML2Driver, o.Network.ML2Driver)
	mergeString(&d.Network.DVR, o.Network.DVR)
	mergeString(&d.Storage.Backend, o.Storage.Backend)
	d.Nodes = mergeChildren(d.Nodes, o.Nodes)
}

func (d *Deployment) Clone() *Deployment {
	out := *d
	out.Nodes = cloneChildren(d.Nodes)
	return &out
}

// Node is a host in a deployment.
type Node struct {
	Name       string                `json:"name"`
	Role       string                `json:"role,omitempty"`
	Containers map[string]*Container `json:"containers,omitempty"`
}

func (n *Node) Merge(o *Node) {
	mergeString(&n.Name, o.Name)
	mergeString(&n.Role, o.Role)
	n.Containers = mergeChildren(n.Containers, o.Containers)
}

func (n *Node) Clone() *Node {
	return &Node{Name: n.Name, Role: n.Role, Containers: cloneChildren(n.Containers)}
}

type Container struct {
	Name     string              `json:"name"`
	Image    string              `json:"image,omitempty"`
	Packages map[string]*Package `json:"packages,omitempty"`
}

func (c *Container) Merge(o *Container) {
	mergeString(&c.Name, o.Name)
	mergeString(&c.Image, o.Image)
	c.Packages = mergeChildren(c.Packages, o.Packages)
}

func (c *Container) Clone() *Container {
	return &Container{Name: c.Name, Image: c.Image, Packages: cloneChildren(c.Packages)}
}

type Package struct {
	Name   string `json:"name"`
	Origin string `json:"origin,omitempty"`
}

func (p *Package) Merge(o *Package) {
	mergeString(&p.Name, o.Name)
	mergeString(&p.Origin, o.Origin)
}

func (p *Package) Clone() *Package {
	out := *p
	return &out
}
