package main

import (
	"fmt"
	"os"
	"time"

	gocontext "context"

	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/mistio/go-nephoscale/config"
	nephocontext "github.com/mistio/go-nephoscale/context"
	"github.com/mistio/go-nephoscale/nephoscale"
)

// VersionString is overridden at build time via ldflags.
var VersionString = "?"

func main() {
	app := cli.NewApp()
	app.Name = "nephoscale"
	app.Usage = "Manage NephoScale cloud servers"
	app.Version = VersionString
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "user",
			Usage:  "NephoScale account user",
			EnvVar: "NEPHOSCALE_USER,MIST_NEPHOSCALE_USER",
		},
		cli.StringFlag{
			Name:   "key",
			Usage:  "NephoScale account secret key",
			EnvVar: "NEPHOSCALE_KEY,MIST_NEPHOSCALE_KEY",
		},
		cli.StringFlag{
			Name:   "endpoint",
			Usage:  "API endpoint override, mostly for testing",
			EnvVar: "NEPHOSCALE_ENDPOINT,MIST_NEPHOSCALE_ENDPOINT",
		},
		cli.DurationFlag{
			Name:   "poll-interval",
			Usage:  "sleep interval between polls for a created server",
			Value:  10 * time.Second,
			EnvVar: "NEPHOSCALE_POLL_INTERVAL,MIST_NEPHOSCALE_POLL_INTERVAL",
		},
		cli.UintFlag{
			Name:   "poll-attempts",
			Usage:  "number of listing polls before giving up on a created server",
			Value:  20,
			EnvVar: "NEPHOSCALE_POLL_ATTEMPTS,MIST_NEPHOSCALE_POLL_ATTEMPTS",
		},
		cli.BoolFlag{
			Name:   "debug",
			Usage:  "set log level to debug",
			EnvVar: "NEPHOSCALE_DEBUG,MIST_NEPHOSCALE_DEBUG",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "locations",
			Usage:  "List datacenters",
			Action: runListLocations,
		},
		{
			Name:   "images",
			Usage:  "List server images",
			Action: runListImages,
		},
		{
			Name:   "sizes",
			Usage:  "List service types, cheapest first",
			Action: runListSizes,
		},
		{
			Name:   "servers",
			Usage:  "List cloud servers",
			Action: runListNodes,
		},
		{
			Name:  "keys",
			Usage: "List credential keys",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "group",
					Usage: "only show keys in this key group (1=server, 4=console)",
				},
			},
			Action: runListKeys,
		},
		{
			Name:  "create",
			Usage: "Create a cloud server and wait for it to become visible",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "name", Usage: "server name"},
				cli.StringFlag{Name: "hostname", Usage: "server hostname, defaults to name"},
				cli.StringFlag{Name: "size", Usage: "service type id"},
				cli.StringFlag{Name: "image", Usage: "image id"},
				cli.StringFlag{Name: "server-key", Usage: "server key id to install"},
				cli.StringFlag{Name: "console-key", Usage: "console key id to install"},
			},
			Action: runCreateNode,
		},
		{
			Name:  "rename",
			Usage: "Rename a cloud server",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "id", Usage: "server id"},
				cli.StringFlag{Name: "name", Usage: "new server name"},
				cli.StringFlag{Name: "hostname", Usage: "new hostname"},
			},
			Action: runRenameNode,
		},
		{
			Name:      "reboot",
			Usage:     "Reboot a running server",
			ArgsUsage: "<server-id>",
			Action:    nodeActionCommand((*nephoscale.Driver).RebootNode),
		},
		{
			Name:      "start",
			Usage:     "Start a stopped server",
			ArgsUsage: "<server-id>",
			Action:    nodeActionCommand((*nephoscale.Driver).StartNode),
		},
		{
			Name:      "stop",
			Usage:     "Stop a running server",
			ArgsUsage: "<server-id>",
			Action:    nodeActionCommand((*nephoscale.Driver).StopNode),
		},
		{
			Name:      "destroy",
			Usage:     "Destroy a server",
			ArgsUsage: "<server-id>",
			Action:    nodeActionCommand((*nephoscale.Driver).DestroyNode),
		},
		{
			Name:  "add-ssh-key",
			Usage: "Register an SSH public key",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "name", Usage: "key name"},
				cli.StringFlag{Name: "public-key", Usage: "SSH public key material"},
			},
			Action: runAddSSHKey,
		},
		{
			Name:  "add-password-key",
			Usage: "Register a console password key",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "name", Usage: "key name"},
				cli.StringFlag{Name: "password", Usage: "password, random when omitted"},
			},
			Action: runAddPasswordKey,
		},
		{
			Name:      "delete-ssh-key",
			Usage:     "Delete an SSH key",
			ArgsUsage: "<key-id>",
			Action:    keyActionCommand((*nephoscale.Driver).DeleteSSHKey),
		},
		{
			Name:      "delete-password-key",
			Usage:     "Delete a password key",
			ArgsUsage: "<key-id>",
			Action:    keyActionCommand((*nephoscale.Driver).DeletePasswordKey),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func setup(c *cli.Context) (gocontext.Context, *nephoscale.Driver, error) {
	if c.GlobalBool("debug") {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.TextFormatter{DisableColors: true})

	cfg := config.ProviderConfigFromEnviron("nephoscale")
	for flagName, cfgKey := range map[string]string{
		"user":     "USER",
		"key":      "KEY",
		"endpoint": "ENDPOINT",
	} {
		if c.GlobalIsSet(flagName) {
			cfg.Set(cfgKey, c.GlobalString(flagName))
		}
	}

	driver, err := nephoscale.DriverFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	if c.GlobalIsSet("poll-interval") {
		driver.PollInterval = c.GlobalDuration("poll-interval")
	}
	if c.GlobalIsSet("poll-attempts") {
		driver.PollAttempts = uint64(c.GlobalUint("poll-attempts"))
	}

	ctx := nephocontext.FromComponent(gocontext.Background(), "cli")
	ctx = nephocontext.FromUUID(ctx, uuid.New())
	return ctx, driver, nil
}

func runListLocations(c *cli.Context) error {
	ctx, driver, err := setup(c)
	if err != nil {
		return err
	}

	locations, err := driver.ListLocations(ctx)
	if err != nil {
		return err
	}

	for _, location := range locations {
		fmt.Printf("%s\t%s\t%s\n", location.ID, location.Name, location.Country)
	}
	return nil
}

func runListImages(c *cli.Context) error {
	ctx, driver, err := setup(c)
	if err != nil {
		return err
	}

	images, err := driver.ListImages(ctx)
	if err != nil {
		return err
	}

	for _, image := range images {
		fmt.Printf("%s\t%s\t%s\n", image.ID, image.Name, image.Extra.Architecture)
	}
	return nil
}

func runListSizes(c *cli.Context) error {
	ctx, driver, err := setup(c)
	if err != nil {
		return err
	}

	sizes, err := driver.ListSizes(ctx)
	if err != nil {
		return err
	}

	for _, size := range sizes {
		fmt.Printf("%s\t%s\tram=%dMB\tdisk=%dGB\t$%.4f/h\n",
			size.ID, size.Name, size.RAM, size.Disk, size.Price)
	}
	return nil
}

func runListNodes(c *cli.Context) error {
	ctx, driver, err := setup(c)
	if err != nil {
		return err
	}

	nodes, err := driver.ListNodes(ctx)
	if err != nil {
		return err
	}

	for _, node := range nodes {
		fmt.Printf("%s\t%s\t%s\tpublic=%v\tprivate=%v\n",
			node.ID, node.Name, node.State, node.PublicIPs, node.PrivateIPs)
	}
	return nil
}

func runListKeys(c *cli.Context) error {
	ctx, driver, err := setup(c)
	if err != nil {
		return err
	}

	keys, err := driver.ListAllKeys(ctx, c.Int("group"))
	if err != nil {
		return err
	}

	for _, key := range keys {
		raw, err := key.Raw().EncodePretty()
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", raw)
	}
	return nil
}

func runCreateNode(c *cli.Context) error {
	ctx, driver, err := setup(c)
	if err != nil {
		return err
	}

	ctx = nephocontext.FromNodeName(ctx, c.String("name"))

	node, err := driver.CreateNode(ctx, &nephoscale.CreateNodeOpts{
		Name:         c.String("name"),
		Hostname:     c.String("hostname"),
		Size:         &nephoscale.Size{ID: c.String("size")},
		Image:        &nephoscale.Image{ID: c.String("image")},
		ServerKeyID:  c.String("server-key"),
		ConsoleKeyID: c.String("console-key"),
	})
	if err != nil {
		return err
	}

	if node.ID == "" {
		fmt.Printf("create acknowledged but server %q is not visible yet, check `nephoscale servers` later\n", node.Name)
		return nil
	}

	fmt.Printf("%s\t%s\t%s\tpublic=%v\tprivate=%v\n",
		node.ID, node.Name, node.State, node.PublicIPs, node.PrivateIPs)
	return nil
}

func runRenameNode(c *cli.Context) error {
	ctx, driver, err := setup(c)
	if err != nil {
		return err
	}

	ok, err := driver.RenameNode(ctx, c.String("id"), c.String("name"), c.String("hostname"))
	if err != nil {
		return err
	}
	return reportOutcome(ok)
}

func runAddSSHKey(c *cli.Context) error {
	ctx, driver, err := setup(c)
	if err != nil {
		return err
	}

	id, err := driver.AddSSHKey(ctx, c.String("name"), c.String("public-key"))
	if err != nil {
		return err
	}

	fmt.Println(id)
	return nil
}

func runAddPasswordKey(c *cli.Context) error {
	ctx, driver, err := setup(c)
	if err != nil {
		return err
	}

	id, err := driver.AddPasswordKey(ctx, c.String("name"), c.String("password"))
	if err != nil {
		return err
	}

	fmt.Println(id)
	return nil
}

func nodeActionCommand(action func(*nephoscale.Driver, gocontext.Context, string) (bool, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.Args().First() == "" {
			return cli.NewExitError("expected a server id argument", 2)
		}

		ctx, driver, err := setup(c)
		if err != nil {
			return err
		}

		ok, err := action(driver, ctx, c.Args().First())
		if err != nil {
			return err
		}
		return reportOutcome(ok)
	}
}

func keyActionCommand(action func(*nephoscale.Driver, gocontext.Context, string) (bool, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.Args().First() == "" {
			return cli.NewExitError("expected a key id argument", 2)
		}

		ctx, driver, err := setup(c)
		if err != nil {
			return err
		}

		ok, err := action(driver, ctx, c.Args().First())
		if err != nil {
			return err
		}
		return reportOutcome(ok)
	}
}

func reportOutcome(ok bool) error {
	if !ok {
		return cli.NewExitError("the API declined the request", 1)
	}

	fmt.Println("ok")
	return nil
}
