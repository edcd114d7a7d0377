package game

import (
	"math/rand"

	"hideout/internal/db"
)

// driverTarget is how many drivers a game should have: the configured
// cap, but always leaving at least one seeker.
func driverTarget(game *db.Game) int {
	n := len(game.Participants)
	target := game.MaxDrivers
	if target > n-1 {
		target = n - 1
	}
	if target < 0 {
		target = 0
	}
	return target
}

// assignRoles picks drivers uniformly at random; everyone else seeks.
func assignRoles(game *db.Game) {
	target := driverTarget(game)
	order := rand.Perm(len(game.Participants))
	for i, idx := range order {
		if i < target {
			game.Participants[idx].Role = db.RoleDriver
		} else {
			game.Participants[idx].Role = db.RoleSeeker
		}
	}
}

// rebalanceRoles restores the driver target after a participant is
// added or removed mid-game. Unassigned newcomers are placed first.
func rebalanceRoles(game *db.Game) {
	for i := range game.Participants {
		if game.Participants[i].Role == "" {
			game.Participants[i].Role = db.RoleSeeker
		}
	}
	target := driverTarget(game)
	drivers := len(game.Drivers())
	for drivers < target {
		idx := pickRandomWithRole(game, db.RoleSeeker)
		if idx < 0 {
			return
		}
		game.Participants[idx].Role = db.RoleDriver
		drivers++
	}
	for drivers > target {
		idx := pickRandomWithRole(game, db.RoleDriver)
		if idx < 0 {
			return
		}
		game.Participants[idx].Role = db.RoleSeeker
		drivers--
	}
}

func pickRandomWithRole(game *db.Game, role string) int {
	var candidates []int
	for i := range game.Participants {
		if game.Participants[i].Role == role {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return -1
	}
	return candidates[rand.Intn(len(candidates))]
}

func seekerCount(game *db.Game) int {
	count := 0
	for _, p := range game.Participants {
		if p.Role == db.RoleSeeker {
			count++
		}
	}
	return count
}

// allDriversFound is the completion condition: at least one driver and
// none of them still hidden.
func allDriversFound(game *db.Game) bool {
	drivers := game.Drivers()
	if len(drivers) == 0 {
		return false
	}
	for _, d := range drivers {
		if !d.Found {
			return false
		}
	}
	return true
}
