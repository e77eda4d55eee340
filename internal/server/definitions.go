package server

import (
	"context"
	"strings"
)

// Template placeholders of start commands.
const (
	PlaceholderExe = "{server_exe}"
	PlaceholderDir = "{server_dir}"
)

// Definition is the static description of a server software variant.
// Flavors differing only in version share their functions; the table
// in Builtin combines them.
type Definition struct {
	Name string

	// URL is the default download location.
	URL string

	// LogPath is the server log, relative to the world directory.
	LogPath string

	// StartPattern matches the first log line of a fresh process.
	StartPattern string

	// ErrorPattern matches log lines reporting a severe error.
	ErrorPattern string

	// StartCommand is the default command template.
	StartCommand string

	// PropertiesFile is the world file receiving forced properties before
	// a start, relative to the world directory. Empty disables merging.
	PropertiesFile string

	// Exe resolves the executable inside the flavor directory.
	Exe func(dir string) (string, error)

	// Translate maps a vanilla console command to this flavor's syntax.
	// Nil means identity.
	Translate func(cmd string) string

	// Address reads the bound address from a world directory.
	Address func(worldDir string) Address

	// Install puts the software into the flavor directory.
	Install func(ctx context.Context, f *Flavor) error
}

const (
	vanillaStart = "java -jar " + PlaceholderExe + " nogui"
	jarStart     = "java -jar " + PlaceholderExe

	severeRe = `.* \[SEVERE\] .*`
)

func vanilla(version, url, logPath string) Definition {
	return Definition{
		Name:           "vanilla " + version,
		URL:            url,
		LogPath:        logPath,
		StartPattern:   `^.*Starting minecraft server version ` + strings.ReplaceAll(version, ".", `\.`) + `.*`,
		ErrorPattern:   severeRe,
		StartCommand:   vanillaStart,
		PropertiesFile: propertiesFile,
		Exe:            fixedExe("minecraft_server.jar"),
		Address:        PropertiesAddress,
		Install:        downloadJar,
	}
}

// forge reuses the log layout and address parsing of the matching
// vanilla version and replaces the software handling.
func forge(base Definition, url, exePattern string) Definition {
	d := base
	d.Name = "minecraft forge " + strings.TrimPrefix(base.Name, "vanilla ")
	d.URL = url
	d.Exe = globExe(exePattern)
	d.Install = runForgeInstaller
	return d
}

func bungeecord() Definition {
	return Definition{
		Name:         "bungeecord",
		URL:          "https://ci.md-5.net/job/BungeeCord/lastSuccessfulBuild/artifact/bootstrap/target/BungeeCord.jar",
		LogPath:      "proxy.log.0",
		StartPattern: `^.*Enabled BungeeCord version git:.*`,
		ErrorPattern: severeRe,
		StartCommand: jarStart,
		Exe:          fixedExe("BungeeCord.jar"),
		Translate:    translateBungeeCord,
		Address:      bungeeCordAddress,
		Install:      downloadJar,
	}
}

func spigot() Definition {
	return Definition{
		Name:           "spigot latest",
		URL:            "https://hub.spigotmc.org/jenkins/job/BuildTools/lastSuccessfulBuild/artifact/target/BuildTools.jar",
		LogPath:        "logs/latest.log",
		StartPattern:   `^.*Starting minecraft server version .*`,
		ErrorPattern:   `.*/SEVERE\].*`,
		StartCommand:   jarStart,
		PropertiesFile: propertiesFile,
		Exe:            fixedExe("spigot.jar"),
		Address:        PropertiesAddress,
		Install:        buildSpigot,
	}
}

// translateBungeeCord maps "say" to "alert" and "stop" to "end".
func translateBungeeCord(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	switch {
	case strings.HasPrefix(cmd, "say "):
		return "alert " + strings.TrimPrefix(cmd, "say ")
	case cmd == "stop":
		return "end"
	}
	return cmd
}

const mojang = "https://s3.amazonaws.com/Minecraft.Download/versions/"

// Builtin returns the flavors known to every instance.
func Builtin() []Definition {
	v12 := vanilla("1.2", mojang+"1.2.5/minecraft_server.1.2.5.jar", "server.log")
	v13 := vanilla("1.3", mojang+"1.3.2/minecraft_server.1.3.2.jar", "server.log")
	v14 := vanilla("1.4", mojang+"1.4.7/minecraft_server.1.4.7.jar", "server.log")
	v15 := vanilla("1.5", mojang+"1.5.2/minecraft_server.1.5.2.jar", "server.log")
	v16 := vanilla("1.6", mojang+"1.6.4/minecraft_server.1.6.4.jar", "server.log")
	v17 := vanilla("1.7", mojang+"1.7.10/minecraft_server.1.7.10.jar", "logs/latest.log")
	v18 := vanilla("1.8", mojang+"1.8.9/minecraft_server.1.8.9.jar", "logs/latest.log")
	v19 := vanilla("1.9", mojang+"1.9/minecraft_server.1.9.jar", "logs/latest.log")
	v110 := vanilla("1.10", mojang+"1.10.2/minecraft_server.1.10.2.jar", "logs/latest.log")
	v111 := vanilla("1.11", mojang+"1.11.2/minecraft_server.1.11.2.jar", "logs/latest.log")

	const forgeMaven = "https://files.minecraftforge.net/maven/net/minecraftforge/forge/"

	return []Definition{
		v12, v13, v14, v15, v16, v17, v18, v19, v110, v111,
		forge(v16, "https://files.minecraftforge.net/minecraftforge/minecraftforge-installer-1.6.4-9.11.1.916.jar",
			`^minecraftforge-universal-1\.6.*\.jar$`),
		forge(v17, forgeMaven+"1.7.10-10.13.4.1614-1.7.10/forge-1.7.10-10.13.4.1614-1.7.10-installer.jar",
			`^forge-1\.7.*\.jar$`),
		forge(v18, forgeMaven+"1.8.9-11.15.1.1722/forge-1.8.9-11.15.1.1722-installer.jar",
			`^forge-1\.8.*\.jar$`),
		forge(v110, forgeMaven+"1.10.2-12.18.0.2008/forge-1.10.2-12.18.0.2008-installer.jar",
			`^forge-1\.10.*\.jar$`),
		bungeecord(),
		spigot(),
	}
}
