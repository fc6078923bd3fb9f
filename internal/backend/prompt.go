package backend

import (
	"fmt"
	"strings"
)

const promptTemplate = `You are an Arch Linux package and dev environment assistant. Return ONLY valid JSON with two keys:

1. "env_steps": Shell commands for setup (mkdir, venv, npm/pip install, service config). Use [] for simple installs.
2. "packages": Arch packages (official names). Prefix AUR with "aur:" (e.g., "aur:google-chrome").

Rules:
- JSON only, no markdown/backticks
- Empty env_steps for package installs only
- Full env_steps for dev environments/projects
- Do not put pacman commands in env_steps; packages are installed separately

Task: %s

Examples:
"install vlc git" → {"env_steps": [], "packages": ["vlc", "git"]}

"create django dev" → {"env_steps": ["mkdir project && cd project", "python -m venv .venv", "source .venv/bin/activate", "pip install django"], "packages": ["python", "python-pip", "git"]}

"create react project named app1 with tailwind" → {"env_steps": ["npm create vite@latest app1 -- --template react", "cd app1", "npm install", "npm install -D tailwindcss postcss autoprefixer", "npx tailwindcss init -p"], "packages": ["nodejs", "npm", "git"]}
`

func BuildPrompt(goal string) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(goal))
}
