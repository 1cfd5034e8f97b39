package seed

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ekpsearch/internal/domain/model"
	"github.com/okian/ekpsearch/pkg/logger"
)

// ekpDigits is the width of generated EKP numbers.
const ekpDigits = 16

var ekpModulus = pow10(ekpDigits)

type sport struct {
	name        string
	disciplines []string
}

var (
	sports = []sport{
		{"Футбол", []string{"футбол", "мини-футбол", "пляжный футбол"}},
		{"Баскетбол", []string{"баскетбол", "баскетбол 3х3"}},
		{"Хоккей с шайбой", []string{"хоккей с шайбой"}},
		{"Плавание", []string{"вольный стиль 50 м", "баттерфляй 100 м", "брасс 200 м", "комплексное плавание 400 м"}},
		{"Лёгкая атлетика", []string{"бег 100 м", "марафон", "прыжок в длину", "толкание ядра"}},
		{"Самбо", []string{"весовая категория 57 кг", "весовая категория 74 кг", "боевое самбо"}},
		{"Шахматы", []string{"быстрые шахматы", "блиц", "классические шахматы"}},
		{"Лыжные гонки", []string{"спринт", "масс-старт 30 км", "эстафета 4х10 км"}},
		{"Волейбол", []string{"волейбол", "пляжный волейбол"}},
		{"Фигурное катание", []string{"одиночное катание", "парное катание", "танцы на льду"}},
	}
	cities = []string{
		"Москва", "Санкт-Петербург", "Казань", "Новосибирск", "Екатеринбург",
		"Сочи", "Омск", "Красноярск", "Уфа", "Владивосток", "Калининград", "Тюмень",
	}
	compositions = []string{"основной", "юниорский", "молодёжный", "резервный"}
	classes      = []string{
		"чемпионат России", "первенство России", "кубок России",
		"всероссийские соревнования", "международные соревнования",
	}
	genders = []string{"мужчины", "женщины", "юноши", "девушки", "юниоры", "юниорки"}
)

func pow10(n int) uint64 {
	v := uint64(1)
	for range n {
		v *= 10
	}
	return v
}

// ekpNumber derives a stable, zero-padded numeric EKP number from seed and i.
func ekpNumber(seed uint64, i int) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(strconv.FormatUint(seed, 10)+"/"+strconv.Itoa(i)))
	n := binary.BigEndian.Uint64(id[:8]) % ekpModulus
	return fmt.Sprintf("%0*d", ekpDigits, n)
}

func pick[T any](r *rand.Rand, xs []T) T {
	return xs[r.IntN(len(xs))]
}

// generateRecords creates cfg.NumRecords synthetic calendar entries. The
// output depends only on cfg.Seed.
func generateRecords(ctx context.Context, cfg *Config, stats *Stats) ([]model.CompetitionRecord, error) {
	logger.Get().Info(ctx, "generating records", logger.Int("count", cfg.NumRecords), logger.Any("seed", cfg.Seed))

	r := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	recs := make([]model.CompetitionRecord, cfg.NumRecords)
	for i := range recs {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("context cancelled during record generation: %w", err)
			}
		}
		recs[i] = generateRecord(r, base, cfg.Seed, i)
	}

	stats.RecordsGenerated = len(recs)
	logger.Get().Info(ctx, "generated records", logger.Int("count", len(recs)))
	return recs, nil
}

func generateRecord(r *rand.Rand, base time.Time, seed uint64, i int) model.CompetitionRecord {
	sp := pick(r, sports)
	start := base.AddDate(0, 0, r.IntN(365))
	end := start.AddDate(0, 0, r.IntN(7))

	ages := make([]string, 0, 2)
	for range 1 + r.IntN(2) {
		from := 10 + r.IntN(10)
		ages = append(ages, fmt.Sprintf("%s %d-%d лет", pick(r, genders), from, from+1+r.IntN(4)))
	}

	capacity := 20 + r.IntN(480)
	return model.CompetitionRecord{
		SportName:        sp.name,
		SportComposition: pick(r, compositions),
		EKPNumber:        ekpNumber(seed, i),
		DateStart:        model.Date{Time: start},
		DateEnd:          model.Date{Time: end},
		City:             pick(r, cities),
		Discipline:       pick(r, sp.disciplines),
		CompetitionClass: pick(r, classes),
		Country:          "Россия",
		MaxPeopleCount:   capacity,
		GendersAndAges:   ages,
		Registered:       r.IntN(capacity + 1),
	}
}
